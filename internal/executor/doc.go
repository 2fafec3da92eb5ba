// Package executor runs configured command lines through a system shell.
//
// Each command line is handed verbatim to the shell as the single argument
// after -c; knock never splits or quotes it. The child is awaited
// synchronously with no timeout, and stdout/stderr are captured (capped at
// 64KB each) for diagnostics and the execution history.
//
// Error handling:
//   - Shell missing or not executable → spawn error returned
//   - Non-zero exit → Result with ExitStatus set, nil error
//   - Killed by signal → Result with ExitStatus -1, nil error
package executor
