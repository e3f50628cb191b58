package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	commands "purifier-cloud/internal/commands/domain"
	overridesapp "purifier-cloud/internal/overrides/application"
)

// Handler serves the override trigger endpoint.
type Handler struct {
	controller *overridesapp.Controller
}

// NewHandler constructs a handler.
func NewHandler(controller *overridesapp.Controller) (*Handler, error) {
	if controller == nil {
		return nil, errors.New("overrides handler: nil controller")
	}
	return &Handler{controller: controller}, nil
}

type triggerRequest struct {
	DeviceID        string `json:"deviceId"`
	FanSpeed        int    `json:"fanSpeed"`
	DurationSeconds int    `json:"durationSeconds"`
}

// ServeHTTP handles POST /api/v1/overrides.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req triggerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	res, err := h.controller.Trigger(r.Context(), req.DeviceID, req.FanSpeed, req.DurationSeconds)
	if err != nil {
		if commands.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}
