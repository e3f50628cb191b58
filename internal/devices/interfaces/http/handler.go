package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	devices "purifier-cloud/internal/devices/domain"
	telemetry "purifier-cloud/internal/telemetry/domain"
)

// SnapshotStore reads last-known device state.
type SnapshotStore interface {
	Get(ctx context.Context, deviceID string) (*devices.Snapshot, error)
	List(ctx context.Context) ([]devices.Snapshot, error)
}

// HistoryStore reads telemetry history.
type HistoryStore interface {
	ListByDevice(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]telemetry.Record, error)
}

// Handler serves device status and telemetry-history endpoints.
type Handler struct {
	snapshots SnapshotStore
	history   HistoryStore
}

// NewHandler constructs a handler.
func NewHandler(snapshots SnapshotStore, history HistoryStore) (*Handler, error) {
	if snapshots == nil {
		return nil, errors.New("devices handler: nil snapshot store")
	}
	if history == nil {
		return nil, errors.New("devices handler: nil history store")
	}
	return &Handler{snapshots: snapshots, history: history}, nil
}

type snapshotView struct {
	DeviceID        string `json:"deviceId"`
	PowerState      string `json:"powerState"`
	FanSpeed        int    `json:"fanSpeed"`
	Online          bool   `json:"online"`
	LastSeen        string `json:"lastSeen,omitempty"`
	WifiSSID        string `json:"wifiSsid,omitempty"`
	FirmwareVersion string `json:"firmwareVersion,omitempty"`
}

type telemetryView struct {
	DeviceID    string  `json:"deviceId"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	PM1         float64 `json:"pm1"`
	PM25        float64 `json:"pm25"`
	PM10        float64 `json:"pm10"`
	VOC         float64 `json:"voc"`
	SoundLevel  float64 `json:"soundLevel"`
	WifiRSSI    float64 `json:"wifiRssi"`
	FanSpeed    int     `json:"fanSpeed"`
	PowerState  string  `json:"powerState"`
	Timestamp   string  `json:"timestamp"`
}

// ServeHTTP handles GET /api/v1/devices, /api/v1/devices/{id}/status and
// /api/v1/devices/{id}/telemetry.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/devices")
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		h.handleList(w, r)
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch parts[1] {
	case "status":
		h.handleStatus(w, r, parts[0])
	case "telemetry":
		h.handleTelemetry(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.snapshots.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]snapshotView, 0, len(list))
	for i := range list {
		views = append(views, snapshotViewOf(&list[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request, deviceID string) {
	snap, err := h.snapshots.Get(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, devices.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshotViewOf(snap))
}

func (h *Handler) handleTelemetry(w http.ResponseWriter, r *http.Request, deviceID string) {
	from, to, limit, err := rangeParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := h.history.ListByDevice(r.Context(), deviceID, from, to, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]telemetryView, 0, len(records))
	for _, rec := range records {
		views = append(views, telemetryView{
			DeviceID:    rec.DeviceID,
			Temperature: rec.Temperature,
			Humidity:    rec.Humidity,
			PM1:         rec.PM1,
			PM25:        rec.PM25,
			PM10:        rec.PM10,
			VOC:         rec.VOC,
			SoundLevel:  rec.SoundLevel,
			WifiRSSI:    rec.WifiRSSI,
			FanSpeed:    rec.FanSpeed,
			PowerState:  rec.PowerState,
			Timestamp:   rec.Timestamp.Format(time.RFC3339),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

func snapshotViewOf(snap *devices.Snapshot) snapshotView {
	v := snapshotView{
		DeviceID:        snap.DeviceID,
		PowerState:      snap.PowerState,
		FanSpeed:        snap.FanSpeed,
		Online:          snap.Online,
		WifiSSID:        snap.WifiSSID,
		FirmwareVersion: snap.FirmwareVersion,
	}
	if !snap.LastSeen.IsZero() {
		v.LastSeen = snap.LastSeen.Format(time.RFC3339)
	}
	return v
}

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
