package profile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/asheshgoplani/opsdeck/internal/logging"
)

var profileLog = logging.ForComponent(logging.CompProfile)

// RoutePrefix is where Handler is mounted.
const RoutePrefix = "/api/profile/"

// MaxBlobBytes bounds a single PUT body.
const MaxBlobBytes = 8 << 20

// Backend is the key/value contract shared by Store and Client.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*Client)(nil)
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

// Handler serves a Backend under RoutePrefix:
//
//	GET    /api/profile/       200 JSON array of keys
//	GET    /api/profile/{key}  200 blob | 404
//	PUT    /api/profile/{key}  204
//	DELETE /api/profile/{key}  204 | 404
func Handler(b Backend) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, RoutePrefix) {
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
			return
		}
		key := strings.TrimPrefix(r.URL.Path, RoutePrefix)

		if key == "" {
			if r.Method != http.MethodGet {
				writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
				return
			}
			keys, err := b.Keys(r.Context())
			if err != nil {
				profileLog.Error("profile_keys_failed", slog.String("error", err.Error()))
				writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list profiles")
				return
			}
			writeJSON(w, http.StatusOK, keys)
			return
		}

		if err := ValidateKey(key); err != nil {
			writeAPIError(w, http.StatusBadRequest, "INVALID_KEY", err.Error())
			return
		}

		switch r.Method {
		case http.MethodGet:
			blob, err := b.Load(r.Context(), key)
			if errors.Is(err, ErrNotFound) {
				writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "profile not found")
				return
			}
			if err != nil {
				profileLog.Error("profile_load_failed", slog.String("key", key), slog.String("error", err.Error()))
				writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load profile")
				return
			}
			w.Header().Set("Content-Type", "application/octet-stream")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(blob)

		case http.MethodPut:
			blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBlobBytes))
			if err != nil {
				writeAPIError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "profile body too large")
				return
			}
			if err := b.Save(r.Context(), key, blob); err != nil {
				profileLog.Error("profile_save_failed", slog.String("key", key), slog.String("error", err.Error()))
				writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to save profile")
				return
			}
			profileLog.Debug("profile_saved", slog.String("key", key), slog.Int("bytes", len(blob)))
			w.WriteHeader(http.StatusNoContent)

		case http.MethodDelete:
			err := b.Delete(r.Context(), key)
			if errors.Is(err, ErrNotFound) {
				writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "profile not found")
				return
			}
			if err != nil {
				profileLog.Error("profile_delete_failed", slog.String("key", key), slog.String("error", err.Error()))
				writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete profile")
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{Error: apiError{Code: code, Message: message}})
}
