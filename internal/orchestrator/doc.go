// Package orchestrator drives a task through planning, step execution and
// solving.
//
// A run moves through these states:
//
//	plan -> execute (one step per iteration) -> solve -> completed
//	             \-> awaiting_confirmation -> Resume -> execute ...
//
// An empty plan ends the run as failed without calling the solver. A run
// that needs a person to pick an option is persisted with its pending
// confirmation and picks up again through Resume.
//
// Dispatcher runs distinct tasks concurrently on a bounded worker pool.
package orchestrator
