package routing

// ExecuteRequest submits source code for execution. Initial standard-input
// values may be queued up front; further values arrive through the input
// relay endpoint while the session is still running.
type ExecuteRequest struct {
	Language   string   `json:"language" validate:"required,oneof=python java c cpp"`
	SourceCode string   `json:"source_code" validate:"required,max=65536"`
	StdinData  []string `json:"stdin_data" validate:"omitempty,dive,max=1000"`
}

// InputRequest relays one standard-input value to a running session.
type InputRequest struct {
	Input string `json:"input" validate:"required,max=1000"`
}

// CheckInputRequest asks whether a piece of source likely reads stdin.
type CheckInputRequest struct {
	Language   string `json:"language" validate:"required,oneof=python java c cpp"`
	SourceCode string `json:"source_code" validate:"required,max=65536"`
}
