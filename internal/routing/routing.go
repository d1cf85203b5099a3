package routing

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

func handleJSONResponse(w http.ResponseWriter, body any, code int) {
	response, _ := json.Marshal(body)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func handleDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var unmarshalTypeError *json.UnmarshalTypeError

	switch {
	case errors.As(err, &syntaxError):
		msg := fmt.Sprintf("Request body contains badly-formed JSON (at position %d)", syntaxError.Offset)
		handleJSONResponse(w, ErrorResponse{Errors: []string{msg}}, http.StatusBadRequest)

	case errors.Is(err, io.ErrUnexpectedEOF):
		msg := "Request body contains badly-formed JSON"
		handleJSONResponse(w, ErrorResponse{Errors: []string{msg}}, http.StatusBadRequest)

	case errors.As(err, &unmarshalTypeError):
		msg := fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d)", unmarshalTypeError.Field, unmarshalTypeError.Offset)
		handleJSONResponse(w, ErrorResponse{Errors: []string{msg}}, http.StatusBadRequest)

	case strings.HasPrefix(err.Error(), "json: unknown field "):
		fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
		msg := fmt.Sprintf("Request body contains unknown field %s", fieldName)
		handleJSONResponse(w, ErrorResponse{Errors: []string{msg}}, http.StatusBadRequest)

	case errors.Is(err, io.EOF):
		msg := "Request body must not be empty"
		handleJSONResponse(w, ErrorResponse{Errors: []string{msg}}, http.StatusBadRequest)

	// Catch the error caused by the request body being too large. Again
	// there is an open issue regarding turning this into a sentinel
	// error at https://github.com/golang/go/issues/30715.
	case err.Error() == "http: request body too large":
		msg := "Request body must not be larger than 1MB"
		handleJSONResponse(w, ErrorResponse{Errors: []string{msg}}, http.StatusRequestEntityTooLarge)

	default:
		log.Error().Err(err).Msg("failed to decode request body")
		handleJSONResponse(w, ErrorResponse{
			Errors: []string{http.StatusText(http.StatusInternalServerError)},
		}, http.StatusInternalServerError)
	}
}
