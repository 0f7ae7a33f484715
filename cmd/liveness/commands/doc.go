// Package commands defines the liveness CLI, an offline driver for the
// challenge generator and the verification engine.
//
// Commands
//
//   - challenge   Print a fresh challenge as JSON
//   - verify      Replay recorded frames against a gesture/expression pair
//
// # Implementation
//
// verify builds the challenge locally instead of talking to a running
// server, so recorded landmark streams can be scored against different
// threshold configs. A failed verification prints the result and makes the
// process exit with status 1.
package commands
