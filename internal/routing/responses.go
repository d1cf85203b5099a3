package routing

import (
	"interactive-run-sandbox/internal/sandbox"
)

// ExecuteResponse is the envelope returned for a submission and for result
// polling. On success Error is null and Output carries the full program
// output; every failure kind carries a distinct classified message together
// with whatever output accumulated before the failure.
type ExecuteResponse struct {
	ID      string  `json:"id"`
	State   string  `json:"state"`
	Success bool    `json:"success"`
	Output  string  `json:"output"`
	Error   *string `json:"error"`

	CompilerOutput string `json:"compiler_output,omitempty"`
	RuntimeMs      int64  `json:"runtime_ms"`
	CompileTimeMs  int64  `json:"compile_time_ms"`
}

// InputResponse is returned from the input relay endpoint: the session state
// after the value was queued plus the output produced since the caller's
// previous interaction.
type InputResponse struct {
	State       string `json:"state"`
	OutputDelta string `json:"output_delta"`
}

// StopResponse is returned when a caller explicitly stops a session.
type StopResponse struct {
	State string `json:"state"`
}

// CheckInputResponse reports the needs-input heuristic result.
type CheckInputResponse struct {
	NeedsInput bool `json:"needs_input"`
}

// ErrorResponse is the uniform error envelope across all endpoints.
type ErrorResponse struct {
	Errors []string `json:"errors"`
	Code   int      `json:"code"`
}

func newExecuteResponse(resp sandbox.Response) ExecuteResponse {
	out := ExecuteResponse{
		ID:             resp.ID,
		State:          resp.Status.String(),
		Success:        resp.Success(),
		Output:         resp.Output,
		CompilerOutput: resp.CompilerOutput,
		RuntimeMs:      resp.Runtime.Milliseconds(),
		CompileTimeMs:  resp.CompileTime.Milliseconds(),
	}

	if message := errorMessage(resp); message != "" {
		out.Error = &message
	}

	return out
}

// errorMessage picks the caller-facing message for a failed execution:
// compiler diagnostics for compile failures, captured stderr for crashes,
// the generic classified message otherwise.
func errorMessage(resp sandbox.Response) string {
	switch resp.Status {
	case sandbox.CompilationFailed:
		if resp.CompilerOutput != "" {
			return resp.CompilerOutput
		}
	case sandbox.RunTimeError:
		if resp.OutputErr != "" {
			return resp.OutputErr
		}
	case sandbox.Completed:
		return ""
	}

	return resp.Status.Message()
}
