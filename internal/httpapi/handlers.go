package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/DoyleJ11/tetris-together/internal/hub"
	"github.com/DoyleJ11/tetris-together/internal/session"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxCodeAttempts = 8

func CreateSession(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < maxCodeAttempts; i++ {
			code, err := hub.GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			if s := h.Create(r.Context(), code); s != nil {
				writeJSON(w, http.StatusCreated, struct {
					Code string `json:"code"`
				}{Code: code})
				return
			}
			log.Debug("collision on code, regenerating", zap.String("code", code))
		}
		http.Error(w, "failed to create session", http.StatusInternalServerError)
	}
}

type valueResponse struct {
	Name    string          `json:"name"`
	Version int             `json:"version"`
	Value   json.RawMessage `json:"value"`
}

// GetValue returns the relay's current copy of one shared value.
func GetValue(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, name := chi.URLParam(r, "code"), chi.URLParam(r, "name")
		s := h.Get(r.Context(), code)
		if s == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		reply := make(chan session.View, 1)
		if err := s.Send(r.Context(), session.GetState{Reply: reply}); err != nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		var view session.View
		select {
		case view = <-reply:
		case <-s.Done():
			http.Error(w, "session not found", http.StatusNotFound)
			return
		case <-r.Context().Done():
			return
		}

		v, ok := view.Values[name]
		if !ok {
			http.Error(w, "value not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, valueResponse{Name: v.Name, Version: v.Version, Value: v.Data})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
