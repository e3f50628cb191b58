package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	commandsapp "purifier-cloud/internal/commands/application"
	devices "purifier-cloud/internal/devices/domain"
	"purifier-cloud/internal/devices/infrastructure/memory"
	overridesapp "purifier-cloud/internal/overrides/application"
	"purifier-cloud/internal/scheduling"
)

type nullDispatcher struct{}

func (nullDispatcher) Dispatch(context.Context, commandsapp.DispatchRequest) (string, error) {
	return "cmd-1", nil
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

func newTestHandler(t *testing.T) (*Handler, *memory.SnapshotRepository) {
	t.Helper()
	snapshots := memory.NewSnapshotRepository()
	timers := scheduling.NewTimerService()
	t.Cleanup(timers.Stop)
	controller, err := overridesapp.NewController(snapshots, nullDispatcher{}, timers, log.New(testWriter{t}, "", 0))
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	handler, err := NewHandler(controller)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return handler, snapshots
}

func TestTriggerReturnsCapturedState(t *testing.T) {
	handler, snapshots := newTestHandler(t)
	if err := snapshots.Upsert(context.Background(), &devices.Snapshot{
		DeviceID: "dev-1", PowerState: devices.PowerOn, FanSpeed: 35,
	}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/overrides", strings.NewReader(`{"deviceId":"dev-1","fanSpeed":90,"durationSeconds":300}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	var result overridesapp.Result
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.CommandID == "" {
		t.Error("empty command id")
	}
	if result.PreviousState.PowerState != devices.PowerOn || result.PreviousState.FanSpeed != 35 {
		t.Errorf("previous state = %+v, want ON/35", result.PreviousState)
	}
	if result.RestoreAt.IsZero() {
		t.Error("restoreAt not set")
	}
}

func TestTriggerValidation(t *testing.T) {
	handler, _ := newTestHandler(t)
	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing device", `{"fanSpeed":50,"durationSeconds":60}`},
		{"fan speed range", `{"deviceId":"dev-1","fanSpeed":120,"durationSeconds":60}`},
		{"negative duration", `{"deviceId":"dev-1","fanSpeed":50,"durationSeconds":-5}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/overrides", strings.NewReader(tc.body))
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.Code)
			}
		})
	}
}

func TestTriggerMethodNotAllowed(t *testing.T) {
	handler, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/overrides", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.Code)
	}
}
