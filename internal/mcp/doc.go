// Package mcp implements the Model Context Protocol (MCP) server for repoindex.
//
// The MCP server exposes three tools to AI coding assistants:
//   - index_repository: Index a local repository incrementally
//   - search_code: Search indexed repositories by keyword, meaning, or both
//   - list_repositories: List indexed repositories and their last outcome
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started via the serve command and reads requests from stdin:
//
//	repoindex serve
//
// # Tool: index_repository
//
//	Request:
//	{
//	  "name": "index_repository",
//	  "arguments": {
//	    "path": "/path/to/web",
//	    "repo": "web",
//	    "force": false,
//	    "exclude": ["**/dist/**"]
//	  }
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "repo": "web",
//	  "files_scanned": 120,
//	  "files_indexed": 3,
//	  "files_unchanged": 115,
//	  "files_binary": 2,
//	  "files_deleted": 0,
//	  "files_failed": 0,
//	  "vector_errors": 0,
//	  "duration_ms": 412
//	}
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "query": "user login handler",
//	    "mode": "hybrid",
//	    "repo": "web",
//	    "limit": 10
//	  }
//	}
//
//	Response:
//	{
//	  "query": "user login handler",
//	  "mode": "hybrid",
//	  "count": 1,
//	  "results": [
//	    {"repo": "web", "path": "src/auth.ts", "filename": "auth.ts",
//	     "snippet": "function [login]() {}", "score": 0.83}
//	  ]
//	}
//
// # Tool: list_repositories
//
// Takes no arguments and returns every registry entry with its file count,
// source, last successful run and last error.
//
// # Error Handling
//
// Handlers return *MCPError values which the framework encodes as JSON-RPC
// errors. Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, embedding provider, etc.)
//   - -32001: Repository root not found or unreadable
//   - -32002: Indexing in progress
//   - -32003: Repository not indexed
//   - -32004: Empty query
//
// # Logging
//
// stdout is reserved for the protocol; the server logs to stderr through
// the zerolog logger passed with WithLogger.
package mcp
