package emit

// Lifecycle messages emitted by the engine.
const (
	MsgStageStart = "stage_start"
	MsgStageEnd   = "stage_end"
	MsgStageError = "stage_error"
	MsgInterrupt  = "interrupt"
	MsgResume     = "resume"
	MsgThreadEnd  = "thread_end"
)

// Event is a single lifecycle observation for one thread.
type Event struct {
	// ThreadID identifies the pipeline instance that emitted this event.
	ThreadID string

	// Step is the checkpoint step the event belongs to (1-indexed).
	// Zero for thread-level events.
	Step int

	// Stage is the stage name; empty for thread-level events.
	Stage string

	// Msg is one of the Msg* constants.
	Msg string

	// Meta carries event-specific fields. Common keys:
	//   - "duration_ms": stage wall time
	//   - "error": error message (marks the event as failed)
	//   - "next": next stage after routing
	//   - "status": pipeline status after the stage
	Meta map[string]interface{}
}
