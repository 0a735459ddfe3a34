package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/model"
	"github.com/Veraticus/spice-harvest/internal/storage"
)

const maxBodyBytes = 4 << 20

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

// writeError maps err to a status code. The message is what a user should see.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{
		Error:   err.Error(),
		Message: common.Remediation(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrSessionBusy), errors.Is(err, common.ErrSessionNotHeld):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, model.ErrInvalidRecipe),
		errors.Is(err, common.ErrEmptyRecipe),
		errors.Is(err, common.ErrMissingConfig),
		errors.Is(err, common.ErrInvalidConfig),
		errors.Is(err, storage.ErrEmptyString):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNoSnapshot), errors.Is(err, common.ErrSelectorNotFound):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// decodeOptional is decode for endpoints whose body may be empty.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: %v", errBadRequest, err)
}
