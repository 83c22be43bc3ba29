// Package supervisor manages the lifecycle of a single embedded runtime
// process. It launches the runtime with redirected standard streams, writes
// line-oriented input into it, drains its merged stdout/stderr stream with a
// bounded wait, and terminates and reaps it on shutdown.
//
// The supervisor deliberately avoids background goroutines: callers poll for
// output and liveness. A runtime crash is therefore observed lazily, on the
// next IsAlive or Stop call, never pushed asynchronously. All exported
// methods are safe for concurrent use; a single mutex covers the process
// identifier, the lifecycle state and both retained pipe endpoints, since
// every operation reads and may mutate that shared state.
package supervisor
