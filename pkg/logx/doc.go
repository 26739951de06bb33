// Package logx configures jobd's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional eventbus sink (min-level + rate limiting) so embedders can
//     forward important log lines wherever they like
package logx
