package exports

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	devices "purifier-cloud/internal/devices/domain"
	telemetry "purifier-cloud/internal/telemetry/domain"
)

// SnapshotStore lists device snapshots for the fleet report.
type SnapshotStore interface {
	List(ctx context.Context) ([]devices.Snapshot, error)
}

// HistoryStore reads telemetry history for the workbook export.
type HistoryStore interface {
	ListByDevice(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]telemetry.Record, error)
}

// Handler serves the file-export endpoints.
type Handler struct {
	snapshots SnapshotStore
	history   HistoryStore
}

// NewHandler constructs a handler.
func NewHandler(snapshots SnapshotStore, history HistoryStore) (*Handler, error) {
	if snapshots == nil {
		return nil, errors.New("exports handler: nil snapshot store")
	}
	if history == nil {
		return nil, errors.New("exports handler: nil history store")
	}
	return &Handler{snapshots: snapshots, history: history}, nil
}

// ServeHTTP handles GET /api/v1/exports/telemetry.xlsx and
// GET /api/v1/exports/devices.pdf.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch strings.TrimPrefix(r.URL.Path, "/api/v1/exports/") {
	case "telemetry.xlsx":
		h.handleTelemetryXLSX(w, r)
	case "devices.pdf":
		h.handleFleetPDF(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleTelemetryXLSX(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id required", http.StatusBadRequest)
		return
	}
	var from, to time.Time
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			http.Error(w, "from must be RFC3339", http.StatusBadRequest)
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			http.Error(w, "to must be RFC3339", http.StatusBadRequest)
			return
		}
	}

	records, err := h.history.ListByDevice(r.Context(), deviceID, from, to, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data, err := BuildTelemetryXLSX(deviceID, records)
	if err != nil {
		http.Error(w, "export xlsx error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleFleetPDF(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.snapshots.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data, err := BuildFleetPDF(snapshots, time.Now().UTC())
	if err != nil {
		http.Error(w, "export pdf error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
