// Package logx configures campbot's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured (the dispatch attempt stream the
//     external dashboard tails is one JSON object per line)
package logx
