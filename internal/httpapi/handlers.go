package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/courtside/internal/engine"
	"github.com/DoyleJ11/courtside/internal/hub"
)

const maxKeyAttempts = 5

type generateKeyResponse struct {
	Success bool   `json:"success"`
	RoomKey string `json:"roomKey,omitempty"`
	Message string `json:"message"`
}

type roomData struct {
	Key       string         `json:"key"`
	Courts    []engine.Court `json:"courts"`
	CreatedAt time.Time      `json:"createdAt"`
}

type validateKeyResponse struct {
	Success  bool      `json:"success"`
	RoomData *roomData `json:"roomData,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// GenerateKey creates a room seeded with the default courts.
func GenerateKey(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for range maxKeyAttempts {
			key := engine.NewKey()
			_, err := h.Create(key, engine.NewDefaultState())
			if errors.Is(err, hub.ErrDuplicateKey) {
				log.Warn("collision on room key, regenerating", zap.String("room", key))
				continue
			}
			if err != nil {
				log.Error("create room", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, generateKeyResponse{Message: "failed to create room"})
				return
			}

			writeJSON(w, http.StatusCreated, generateKeyResponse{
				Success: true,
				RoomKey: key,
				Message: fmt.Sprintf("Room key generated: %s", key),
			})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, generateKeyResponse{Message: "could not allocate a room key"})
	}
}

// ValidateKey reports whether a key resolves to a live room. A successful
// lookup counts as activity.
func ValidateKey(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := h.Get(chi.URLParam(r, "key"))
		if err == nil {
			err = rm.Touch(r.Context())
		}
		if err != nil {
			writeJSON(w, http.StatusOK, validateKeyResponse{Message: "Invalid or expired room key"})
			return
		}

		view, err := rm.Snapshot(r.Context())
		if err != nil {
			writeJSON(w, http.StatusOK, validateKeyResponse{Message: "Invalid or expired room key"})
			return
		}
		writeJSON(w, http.StatusOK, validateKeyResponse{
			Success: true,
			RoomData: &roomData{
				Key:       view.Key,
				Courts:    view.Courts,
				CreatedAt: view.CreatedAt,
			},
		})
	}
}

func Healthz(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Status string `json:"status"`
			Rooms  int    `json:"rooms"`
		}{Status: "ok", Rooms: h.Len()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
