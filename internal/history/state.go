// Package history is the single-writer durable store for task runs,
// per-dataset step logs and reset counters (spec.md §4.3, component C4).
package history

// CompletionState is the enum name stored as text in task_log.state and
// step_log.state.
type CompletionState string

const (
	Pending             CompletionState = "Pending"
	Completed           CompletionState = "Completed"
	CompletedWithErrors CompletionState = "CompletedWithErrors"
	Failed              CompletionState = "Failed"
)
