// Package logx configures threadq's structured logging.
//
// The Logger is a small wrapper on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional alert sink that forwards warnings to an operator chat
//     (min-level + rate limiting)
package logx
