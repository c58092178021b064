package types

// SearchResult is one ranked file returned by keyword, semantic or hybrid search
type SearchResult struct {
	Repo     string  `json:"repo"`
	Path     string  `json:"path"` // Relative to the repository root
	Filename string  `json:"filename"`
	Snippet  *string `json:"snippet"` // Nullable: semantic hits may have no text match
	Score    float64 `json:"score"`   // Higher is better
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Repo == "" {
		return ErrMissingRepo
	}

	if sr.Path == "" {
		return ErrMissingPath
	}

	if sr.Score < 0 {
		return ErrInvalidScore
	}

	return nil
}
