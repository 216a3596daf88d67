// Package logx is watchbot's structured logging layer on top of zerolog.
//
// Outputs are owned by a Service and can be swapped at runtime with Apply:
// a readable console writer, a JSON file, and an optional Telegram sink that
// forwards warnings to an operator chat with a minimum level and rate limit.
package logx
