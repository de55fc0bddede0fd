// Package logging wires log/slog for nichicrawl runs.
//
// Without --debug the process logs warnings and errors as text on stderr.
// With --debug every event is written as JSON to a size-rotated file under
// ~/.nichicrawl/logs/, and each line carries the run_id of the invocation so
// interleaved runs can be told apart by `nichicrawl logs`.
package logging
