package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	commands "purifier-cloud/internal/commands/domain"
	schedulesapp "purifier-cloud/internal/schedules/application"
	schedules "purifier-cloud/internal/schedules/domain"
)

// Handler serves schedule CRUD endpoints.
type Handler struct {
	scheduler *schedulesapp.WindowScheduler
}

// NewHandler constructs a handler.
func NewHandler(scheduler *schedulesapp.WindowScheduler) (*Handler, error) {
	if scheduler == nil {
		return nil, errors.New("schedules handler: nil scheduler")
	}
	return &Handler{scheduler: scheduler}, nil
}

type createRequest struct {
	DeviceID  string `json:"deviceId"`
	Day       string `json:"day"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	FanSpeed  int    `json:"fanSpeed"`
}

type scheduleView struct {
	ScheduleID string `json:"scheduleId"`
	DeviceID   string `json:"deviceId"`
	Day        string `json:"day"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	FanSpeed   int    `json:"fanSpeed"`
	Active     bool   `json:"active"`
	CreatedAt  string `json:"createdAt"`
}

// ServeHTTP handles POST/GET /api/v1/schedules and DELETE /api/v1/schedules/{id}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if id := strings.TrimPrefix(r.URL.Path, "/api/v1/schedules/"); id != r.URL.Path && id != "" {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleDelete(w, r, id)
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

	var req createRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	sched, err := h.scheduler.Create(r.Context(), req.DeviceID, req.Day, req.StartTime, req.EndTime, req.FanSpeed)
	if err != nil {
		if commands.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(viewOf(sched))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.scheduler.List(r.Context(), r.URL.Query().Get("device_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]scheduleView, 0, len(list))
	for i := range list {
		views = append(views, viewOf(&list[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.scheduler.Delete(r.Context(), id); err != nil {
		if errors.Is(err, schedules.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func viewOf(sched *schedules.Schedule) scheduleView {
	return scheduleView{
		ScheduleID: sched.ScheduleID,
		DeviceID:   sched.DeviceID,
		Day:        sched.Day,
		StartTime:  sched.StartTime,
		EndTime:    sched.EndTime,
		FanSpeed:   sched.FanSpeed,
		Active:     sched.Active,
		CreatedAt:  sched.CreatedAt.Format(time.RFC3339),
	}
}
