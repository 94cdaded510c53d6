package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"messenger/internal/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// WriteError renders err as {"error":{"kind","message"}}. Errors that are not a
// *domain.Error are logged and reported as a bare internal error.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		slog.Default().Error("unhandled error", "path", r.URL.Path, "err", err)
		WriteJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{Kind: domain.KindInternal, Message: "internal error"}})
		return
	}
	if de.Kind == domain.KindUpstream || de.Kind == domain.KindInternal {
		slog.Default().Error("request failed", "path", r.URL.Path, "kind", de.Kind, "err", err)
	}
	WriteJSON(w, StatusFor(de.Kind), errorBody{Error: errorDetail{Kind: de.Kind, Message: de.Message}})
}

func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var errBadBody = domain.NewError(domain.KindValidation, "Malformed request body")

// DecodeJSON reads a bounded JSON body into dst. An empty body leaves dst untouched.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errBadBody
	}
	return nil
}
