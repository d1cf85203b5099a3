package sandbox

// Status is the lifecycle state of an execution session. Values from
// Completed onward are terminal; a session entering any terminal state
// releases its workspace and process handle exactly once.
type Status int

const (
	// NotRan - The session has been created but nothing has been spawned
	// for it yet. This is the default state for a new session.
	NotRan Status = iota

	Compiling
	Running
	AwaitingInput

	Completed
	CompilationFailed
	RunTimeError
	TimeLimitExceeded
	Cancelled
	SandboxFailure
)

var statusNames = map[Status]string{
	NotRan:            "NotRan",
	Compiling:         "Compiling",
	Running:           "Running",
	AwaitingInput:     "AwaitingInput",
	Completed:         "Completed",
	CompilationFailed: "CompilationFailed",
	RunTimeError:      "RunTimeError",
	TimeLimitExceeded: "TimeLimitExceeded",
	Cancelled:         "Cancelled",
	SandboxFailure:    "SandboxFailure",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return "Unknown"
}

// Terminal reports whether the status is an end state for the session.
func (s Status) Terminal() bool {
	return s >= Completed
}

// Message is the short caller-facing description of a terminal status. The
// caller renders each failure kind differently, so every terminal status maps
// to a distinct message.
func (s Status) Message() string {
	switch s {
	case Completed:
		return "execution completed"
	case CompilationFailed:
		return "your code failed to compile"
	case RunTimeError:
		return "your code crashed while running"
	case TimeLimitExceeded:
		return "your code took too long to finish"
	case Cancelled:
		return "execution was stopped"
	case SandboxFailure:
		return "the execution environment failed"
	default:
		return ""
	}
}
