package routing

import (
	"encoding/json"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"interactive-run-sandbox/internal/sandbox"
	"interactive-run-sandbox/internal/validation"
)

// SandboxHandlers exposes the execution engine over the narrow HTTP
// boundary: submit, relay input, stop, poll. All session state lives in the
// manager; the handlers themselves are stateless and request scoped.
type SandboxHandlers struct {
	Manager    *sandbox.Manager
	Translator ut.Translator
	Validator  *validator.Validate
}

// HandleExecute accepts a submission, runs it and responds once the program
// has finished or is waiting for input the caller did not supply.
func (h SandboxHandlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var direct ExecuteRequest

	if err := dec.Decode(&direct); err != nil {
		handleDecodeError(w, err)
		return
	}

	if err := h.Validator.Struct(direct); err != nil {
		handleJSONResponse(w, ErrorResponse{
			Errors: validation.TranslateError(err, h.Translator),
		}, http.StatusBadRequest)

		return
	}

	session, err := h.Manager.Submit(sandbox.SubmitRequest{
		Language:   direct.Language,
		SourceCode: direct.SourceCode,
		StdinData:  direct.StdinData,
	})

	if err != nil {
		h.handleSubmitError(w, err)
		return
	}

	result := session.Await(r.Context())

	// consume the delivery cursor so a later input relay only hands back
	// output the caller has not yet seen.
	result.Output = session.TakeOutputDelta()

	handleJSONResponse(w, newExecuteResponse(result), http.StatusOK)
}

// HandleProvideInput relays one standard-input value to a running session
// and returns the state plus the output produced since the last interaction.
func (h SandboxHandlers) HandleProvideInput(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var direct InputRequest

	if err := dec.Decode(&direct); err != nil {
		handleDecodeError(w, err)
		return
	}

	if err := h.Validator.Struct(direct); err != nil {
		handleJSONResponse(w, ErrorResponse{
			Errors: validation.TranslateError(err, h.Translator),
		}, http.StatusBadRequest)

		return
	}

	session, err := h.Manager.ProvideInput(mux.Vars(r)["id"], direct.Input)

	if err != nil {
		h.handleSessionError(w, err)
		return
	}

	resp := session.Await(r.Context())

	handleJSONResponse(w, InputResponse{
		State:       resp.Status.String(),
		OutputDelta: session.TakeOutputDelta(),
	}, http.StatusOK)
}

// HandleStop explicitly cancels a session from any non-terminal state.
func (h SandboxHandlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Manager.Stop(mux.Vars(r)["id"])

	if err != nil {
		h.handleSessionError(w, err)
		return
	}

	handleJSONResponse(w, StopResponse{State: resp.Status.String()}, http.StatusOK)
}

// HandleStatus returns the current snapshot for a session id.
func (h SandboxHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Manager.Response(mux.Vars(r)["id"])

	if err != nil {
		h.handleSessionError(w, err)
		return
	}

	handleJSONResponse(w, newExecuteResponse(resp), http.StatusOK)
}

// HandleCheckInput reports whether the submitted source likely reads
// standard input, letting the caller decide to open an interactive flow.
func (h SandboxHandlers) HandleCheckInput(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var direct CheckInputRequest

	if err := dec.Decode(&direct); err != nil {
		handleDecodeError(w, err)
		return
	}

	if err := h.Validator.Struct(direct); err != nil {
		handleJSONResponse(w, ErrorResponse{
			Errors: validation.TranslateError(err, h.Translator),
		}, http.StatusBadRequest)

		return
	}

	profile, resolveErr := sandbox.ResolveLanguage(direct.Language)

	if resolveErr != nil {
		handleJSONResponse(w, ErrorResponse{
			Errors: []string{resolveErr.Error()},
		}, http.StatusBadRequest)

		return
	}

	handleJSONResponse(w, CheckInputResponse{
		NeedsInput: sandbox.NeedsInput(direct.SourceCode, profile),
	}, http.StatusOK)
}

// handleSubmitError maps pre-spawn failures onto the error envelope. The
// security and language classes are caller mistakes; workspace failures are
// infrastructure faults reported generically without internal detail.
func (h SandboxHandlers) handleSubmitError(w http.ResponseWriter, err error) {
	var violation *sandbox.Violation
	var unsupported sandbox.UnsupportedLanguageError

	switch {
	case errors.As(err, &violation):
		handleJSONResponse(w, ErrorResponse{
			Errors: []string{"your code was rejected before running: " + violation.Error()},
		}, http.StatusBadRequest)

	case errors.As(err, &unsupported):
		handleJSONResponse(w, ErrorResponse{
			Errors: []string{unsupported.Error()},
		}, http.StatusBadRequest)

	case errors.Is(err, sandbox.ErrCapacity):
		handleJSONResponse(w, ErrorResponse{
			Errors: []string{sandbox.ErrCapacity.Error()},
		}, http.StatusTooManyRequests)

	default:
		log.Error().Err(err).Msg("failed to start execution")
		handleJSONResponse(w, ErrorResponse{
			Errors: []string{"failed to start execution"},
		}, http.StatusInternalServerError)
	}
}

func (h SandboxHandlers) handleSessionError(w http.ResponseWriter, err error) {
	var violation *sandbox.Violation

	switch {
	case errors.Is(err, sandbox.ErrNoSuchSession):
		handleJSONResponse(w, ErrorResponse{
			Errors: []string{sandbox.ErrNoSuchSession.Error()},
		}, http.StatusNotFound)

	case errors.As(err, &violation):
		handleJSONResponse(w, ErrorResponse{
			Errors: []string{violation.Error()},
		}, http.StatusBadRequest)

	default:
		log.Error().Err(err).Msg("session interaction failed")
		handleJSONResponse(w, ErrorResponse{
			Errors: []string{http.StatusText(http.StatusInternalServerError)},
		}, http.StatusInternalServerError)
	}
}

// NewRouter wires the execution endpoints onto a mux router.
func NewRouter(handlers SandboxHandlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/execute", handlers.HandleExecute).Methods(http.MethodPost)
	r.HandleFunc("/execute/{id}", handlers.HandleStatus).Methods(http.MethodGet)
	r.HandleFunc("/execute/{id}/input", handlers.HandleProvideInput).Methods(http.MethodPost)
	r.HandleFunc("/execute/{id}/stop", handlers.HandleStop).Methods(http.MethodPost)
	r.HandleFunc("/check-input", handlers.HandleCheckInput).Methods(http.MethodPost)

	return r
}
