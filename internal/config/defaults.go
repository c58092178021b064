package config

import (
	"github.com/spf13/viper"

	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/searcher"
)

// SetDefaults sets the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "~/.repoindex")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Embedder
	v.SetDefault("embedder.provider", string(embedder.ProviderLocal))
	v.SetDefault("embedder.model", "")
	v.SetDefault("embedder.base_url", "")
	v.SetDefault("embedder.api_key", "")
	v.SetDefault("embedder.cache_size", 10000)

	// Search
	v.SetDefault("search.limit", searcher.DefaultLimit)
	v.SetDefault("search.keyword_weight", searcher.DefaultKeywordWeight)
	v.SetDefault("search.semantic_weight", searcher.DefaultSemanticWeight)

	// Index; empty lists fall back to the scanner defaults
	v.SetDefault("index.include", []string{})
	v.SetDefault("index.exclude", []string{})
}
