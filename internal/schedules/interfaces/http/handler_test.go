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
	schedulesapp "purifier-cloud/internal/schedules/application"
	"purifier-cloud/internal/schedules/infrastructure/memory"
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

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	timers := scheduling.NewTimerService()
	t.Cleanup(timers.Stop)
	scheduler, err := schedulesapp.NewWindowScheduler(memory.NewScheduleRepository(), nullDispatcher{}, timers, log.New(testWriter{t}, "", 0))
	if err != nil {
		t.Fatalf("NewWindowScheduler: %v", err)
	}
	handler, err := NewHandler(scheduler)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return handler
}

func create(t *testing.T, handler *Handler, body string) scheduleView {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", resp.Code, resp.Body.String())
	}
	var view scheduleView
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	return view
}

func TestCreateListDelete(t *testing.T) {
	handler := newTestHandler(t)

	view := create(t, handler, `{"deviceId":"dev-1","day":"Monday","startTime":"09:00","endTime":"17:00","fanSpeed":50}`)
	if view.ScheduleID == "" {
		t.Fatal("empty schedule id")
	}
	if !view.Active {
		t.Error("created schedule not active")
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/schedules?device_id=dev-1", nil)
	listResp := httptest.NewRecorder()
	handler.ServeHTTP(listResp, listReq)
	if listResp.Code != http.StatusOK {
		t.Fatalf("list status = %d", listResp.Code)
	}
	var views []scheduleView
	if err := json.Unmarshal(listResp.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(views) != 1 || views[0].ScheduleID != view.ScheduleID {
		t.Fatalf("list = %+v", views)
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/api/v1/schedules/"+view.ScheduleID, nil)
	delResp := httptest.NewRecorder()
	handler.ServeHTTP(delResp, delReq)
	if delResp.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", delResp.Code)
	}

	againResp := httptest.NewRecorder()
	handler.ServeHTTP(againResp, httptest.NewRequest(http.MethodDelete, "/api/v1/schedules/"+view.ScheduleID, nil))
	if againResp.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", againResp.Code)
	}
}

func TestCreateValidation(t *testing.T) {
	handler := newTestHandler(t)
	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"bad day", `{"deviceId":"dev-1","day":"Funday","startTime":"09:00","endTime":"17:00","fanSpeed":50}`},
		{"bad time", `{"deviceId":"dev-1","day":"Monday","startTime":"nine","endTime":"17:00","fanSpeed":50}`},
		{"fan speed", `{"deviceId":"dev-1","day":"Monday","startTime":"09:00","endTime":"17:00","fanSpeed":180}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules", strings.NewReader(tc.body))
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.Code)
			}
		})
	}
}
