// Package logger provides logging facilities for the gitwatch application.
//
// It separates debug records, written through log/slog to a size-rotated
// file, from user-facing console messages. Every record carries a
// per-process session identifier so that several daemon runs sharing one
// log file can be told apart.
//
// # Log Levels
//
//   - Info: debug log only
//   - Warning: debug log, console when verbose
//   - Error: debug log and stderr
//   - InfoToUser, WarningToUser, Success: debug log and stdout
//   - StatusMessage: stdout only
//
// # Usage
//
//	log := logger.New(true, "/path/to/gitwatch.log", true)
//	defer log.Close()
//
//	log.Info("settle point reached")
//	log.Success("Commit #%d created", n)
//
// The DefaultLogger implementation is safe for concurrent use.
package logger
