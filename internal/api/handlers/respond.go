package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/neuralchat/ragserver/internal/apperr"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError renders err as {"detail": ...}. Internal causes are logged,
// never sent to the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusCode(err)
	if errors.Is(err, context.Canceled) && errors.Is(r.Context().Err(), context.Canceled) {
		// The caller is gone; the status only reaches the access log.
		status = 499
	}

	log := slog.With("method", r.Method, "path", r.URL.Path, "request_id", chimiddleware.GetReqID(r.Context()), "status", status)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "kind", apperr.KindOf(err).String(), "error", err)
	} else {
		log.Debug("request rejected", "kind", apperr.KindOf(err).String(), "error", err)
	}

	writeJSON(w, status, map[string]string{"detail": apperr.Detail(err)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is empty")
		}
		return apperr.Validation("invalid request body")
	}
	return nil
}
