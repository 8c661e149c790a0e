// Package logx is jambot's structured logging: a small Logger value on top
// of zerolog.
//
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional Telegram sink (min-level + rate limiting)
package logx
