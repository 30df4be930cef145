package agent

// Event is one callback emitted by the agent while it works. The type is
// sealed so dispatch sites can switch over every variant and the compiler
// keeps them honest when a variant is added.
type Event interface {
	isEvent()
}

// PhaseEvent reports the agent entering a workflow phase.
type PhaseEvent struct {
	Phase string
}

// ProgressEvent reports agent-supplied progress in percent. Values outside
// [0, 100] are passed through; the recorder clamps them.
type ProgressEvent struct {
	Percent float64
}

// LogEvent carries one line of agent output.
type LogEvent struct {
	Level   string
	Message string
}

func (PhaseEvent) isEvent()    {}
func (ProgressEvent) isEvent() {}
func (LogEvent) isEvent()      {}

// Result is the agent's terminal report for one run.
type Result struct {
	ChangedFiles []string
	CommitID     string
}
