// Package searcher implements keyword, semantic and hybrid search over
// indexed repositories.
//
// # Basic Usage
//
//	s, err := searcher.New(store, vectors, emb)
//
//	resp, err := s.Search(ctx, searcher.Request{
//	    Query: "user authentication",
//	    Mode:  searcher.ModeHybrid,
//	    Repo:  "api",
//	    Limit: 10,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("%.3f %s/%s\n", r.Score, r.Repo, r.Path)
//	}
//
// # Search Modes
//
// Keyword mode runs the query through the FTS5 index. Each query term is
// quoted and the terms are OR-joined, so punctuation in the query never
// reaches the FTS5 parser. The native bm25 rank (lower is better) is
// normalized to 1/(1+max(rank, 0)), and FTS5 supplies the snippet.
//
// Semantic mode embeds the query and asks the vector store for the
// nearest files by L2 distance, normalized the same way. The vector store
// holds no text, so each hit's snippet comes from re-running the query
// against the text index restricted to that file; a file the query does
// not match verbatim gets a nil snippet.
//
// Hybrid mode (the default) runs both concurrently, each fetching twice
// the limit, and unions the hits by (repo, path):
//
//	score = keywordScore*keywordWeight + semanticScore*semanticWeight
//
// A hit found on one side only keeps that side's weighted score. Default
// weights are 0.4 keyword and 0.6 semantic. If either side fails the
// whole search fails.
//
// Results are sorted by score descending and cut to the limit (default
// 20, at most 100). Equal scores keep the order the store returned them in.
//
// # Scores
//
// Every keyword or semantic score lies in (0, 1]. Non-finite ranks or
// distances score 0. Hybrid scores are bounded by the sum of the weights.
//
// # Caching
//
// With Request.UseCache set, responses are kept in an LRU keyed by the
// normalized request for one hour. Callers purge the cache after any
// indexing run with PurgeCache.
package searcher
