// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder that sends warnings and
//     errors to stderr and everything else to stdout,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// The guard accepts a context and extracts the logger from it, so every line
// of one run carries the same run identifier.
package logger
