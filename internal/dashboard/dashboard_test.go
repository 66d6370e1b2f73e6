package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"sensorsync/internal/admin"
	"sensorsync/internal/syncer"
)

func sampleStatus() admin.Status {
	return admin.Status{
		DeviceID: "edge-01",
		Backlog:  admin.BacklogStatus{Total: 120, Unsynced: 12},
		Breaker:  admin.BreakerStatus{State: "closed"},
		Pressure: admin.Pressure{Failures: 0, PollInterval: "10s"},
		Disk:     admin.DiskStatus{UtilizationPercent: 41.2},
		Sync:     syncer.Status{LastBatch: 12},
	}
}

func TestUpdate_StatusFillsTable(t *testing.T) {
	m := New("http://edge-01:8080", time.Second)
	model, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	model, _ = model.Update(statusMsg{status: sampleStatus()})

	view := model.View()
	if !strings.Contains(view, "edge-01") {
		t.Errorf("view missing device id:\n%s", view)
	}
	if !strings.Contains(view, "120") || !strings.Contains(view, "12") {
		t.Errorf("view missing backlog counts:\n%s", view)
	}
	if !strings.Contains(view, "closed") {
		t.Errorf("view missing breaker state:\n%s", view)
	}
	if !strings.Contains(view, "connected") {
		t.Errorf("view missing connection state:\n%s", view)
	}
}

func TestUpdate_SyncErrorLoggedOnce(t *testing.T) {
	m := New("http://edge-01:8080", time.Second)
	model, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

	status := sampleStatus()
	status.Sync.LastError = "connection refused"
	model, _ = model.Update(statusMsg{status: status})
	model, _ = model.Update(statusMsg{status: status})

	got := model.(Model)
	if len(got.logs) != 1 {
		t.Fatalf("logged %d lines for one distinct error, want 1", len(got.logs))
	}
	if !strings.Contains(got.logs[0], "connection refused") {
		t.Errorf("log line = %q", got.logs[0])
	}
}

func TestUpdate_FetchErrorShowsUnreachable(t *testing.T) {
	m := New("http://edge-01:8080", time.Second)
	model, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	model, _ = model.Update(fetchErrMsg{err: errors.New("dial tcp: connection refused")})

	view := model.View()
	if !strings.Contains(view, "UNREACHABLE") {
		t.Errorf("view missing unreachable marker:\n%s", view)
	}
}

func TestUpdate_QuitKey(t *testing.T) {
	m := New("http://edge-01:8080", time.Second)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("expected tea.QuitMsg, got %T", cmd())
	}
}

func TestFetch_DecodesStatusEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(sampleStatus())
	}))
	defer srv.Close()

	m := New(srv.URL, time.Second)
	msg := m.fetch()
	status, ok := msg.(statusMsg)
	if !ok {
		t.Fatalf("fetch returned %T", msg)
	}
	if status.status.DeviceID != "edge-01" {
		t.Errorf("device id = %q", status.status.DeviceID)
	}
}

func TestFetch_ServerDownReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m := New(url, time.Second)
	if _, ok := m.fetch().(fetchErrMsg); !ok {
		t.Fatal("expected fetchErrMsg for unreachable server")
	}
}
