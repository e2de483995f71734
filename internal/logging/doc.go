// Package logging provides concrete implementations of the mboxdb.Logger interface.
//
// Available implementations:
//   - ConsoleLogger: Writes formatted lines to stderr (or any io.Writer) with thread-safe output
//   - ZapLogger: Structured JSON output through go.uber.org/zap
//   - Discard: Drops all messages (useful for testing and library defaults)
//
// All logger implementations are safe for concurrent use by multiple goroutines.
package logging
