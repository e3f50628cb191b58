package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	commandsapp "purifier-cloud/internal/commands/application"
	commands "purifier-cloud/internal/commands/domain"
)

// Handler provides command HTTP endpoints.
type Handler struct {
	dispatcher *commandsapp.Dispatcher
}

// NewHandler constructs a handler.
func NewHandler(dispatcher *commandsapp.Dispatcher) (*Handler, error) {
	if dispatcher == nil {
		return nil, errors.New("commands handler: nil dispatcher")
	}
	return &Handler{dispatcher: dispatcher}, nil
}

type issueRequest struct {
	DeviceID string `json:"deviceId"`
	Kind     string `json:"kind"`
	FanSpeed int    `json:"fanSpeed"`
}

type issueResponse struct {
	CommandID string `json:"commandId"`
	Status    string `json:"status"`
}

type commandView struct {
	CommandID string `json:"commandId"`
	DeviceID  string `json:"deviceId"`
	Kind      string `json:"kind"`
	FanSpeed  int    `json:"fanSpeed,omitempty"`
	Origin    string `json:"origin"`
	OriginRef string `json:"originRef,omitempty"`
	Status    string `json:"status"`
	Attempt   int    `json:"attempt"`
	CreatedAt string `json:"createdAt"`
	SentAt    string `json:"sentAt,omitempty"`
	AckedAt   string `json:"ackedAt,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ServeHTTP handles POST/GET /api/v1/commands and GET /api/v1/commands/{id}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if id := strings.TrimPrefix(r.URL.Path, "/api/v1/commands/"); id != r.URL.Path && id != "" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGetOne(w, r, id)
		return
	}
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req issueRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	commandID, err := h.dispatcher.Dispatch(r.Context(), commandsapp.DispatchRequest{
		DeviceID: req.DeviceID,
		Kind:     req.Kind,
		FanSpeed: req.FanSpeed,
		Origin:   commands.OriginManual,
	})
	if err != nil {
		if commands.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(issueResponse{CommandID: commandID, Status: commands.StatusPending})
}

func (h *Handler) handleGetOne(w http.ResponseWriter, r *http.Request, id string) {
	cmd, err := h.dispatcher.GetCommand(r.Context(), id)
	if err != nil {
		if errors.Is(err, commands.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(viewOf(cmd))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id required", http.StatusBadRequest)
		return
	}
	from, to, limit, err := rangeParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	list, err := h.dispatcher.ListCommands(r.Context(), deviceID, from, to, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]commandView, 0, len(list))
	for i := range list {
		views = append(views, viewOf(&list[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

func viewOf(cmd *commands.Command) commandView {
	v := commandView{
		CommandID: cmd.CommandID,
		DeviceID:  cmd.DeviceID,
		Kind:      cmd.Kind,
		Origin:    cmd.Origin,
		OriginRef: cmd.OriginRef,
		Status:    cmd.Status,
		Attempt:   cmd.Attempt,
		CreatedAt: cmd.CreatedAt.Format(time.RFC3339),
		Error:     cmd.Error,
	}
	if cmd.Kind == commands.KindSetFanSpeed {
		v.FanSpeed = cmd.FanSpeed
	}
	if !cmd.SentAt.IsZero() {
		v.SentAt = cmd.SentAt.Format(time.RFC3339)
	}
	if !cmd.AckedAt.IsZero() {
		v.AckedAt = cmd.AckedAt.Format(time.RFC3339)
	}
	return v
}

// rangeParams parses the optional from/to/limit query parameters shared
// by the history endpoints.
func rangeParams(r *http.Request) (from, to time.Time, limit int, err error) {
	if v := r.URL.Query().Get("from"); v != "" {
		from, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, 0, errors.New("from must be RFC3339")
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, 0, errors.New("to must be RFC3339")
		}
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return time.Time{}, time.Time{}, 0, errors.New("to must be after from")
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return time.Time{}, time.Time{}, 0, errors.New("limit must be a non-negative integer")
		}
	}
	return from, to, limit, nil
}
