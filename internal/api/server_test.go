package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/michaelscutari/seek/internal/extract"
)

func fixtureRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, rel := range []string{"budget.txt", "docs/budget-2024.md", "docs/other.md"} {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func startSearch(t *testing.T, h http.Handler, body any) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/search", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start: status %d, body %s", rec.Code, rec.Body)
	}
	var resp startResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" {
		t.Fatal("empty search id")
	}
	return resp.ID
}

func waitTerminal(t *testing.T, h http.Handler, id string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rec := do(t, h, http.MethodGet, "/api/search/"+id, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status: %d", rec.Code)
		}
		var status map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
			t.Fatalf("decode: %v", err)
		}
		switch status["state"] {
		case "completed", "stopped", "timed_out", "errored":
			return status
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("search did not finish")
	return nil
}

func TestSearchLifecycle(t *testing.T) {
	srv := NewServer(extract.NewRegistry())
	defer srv.Shutdown(context.Background())

	id := startSearch(t, srv, map[string]any{
		"root":     fixtureRoot(t),
		"keywords": []string{"budget"},
	})

	status := waitTerminal(t, srv, id)
	if status["state"] != "completed" {
		t.Fatalf("state = %v", status["state"])
	}
	counters, _ := status["counters"].(map[string]any)
	if counters["directories_checked"] != float64(2) {
		t.Errorf("counters = %v", counters)
	}

	rec := do(t, srv, http.MethodGet, "/api/search/"+id+"/results", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("results: status %d", rec.Code)
	}
	var resp resultsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var names []string
	for _, r := range resp.Results {
		names = append(names, r.Name)
	}
	if strings.Join(names, ",") != "budget-2024.md,budget.txt" {
		t.Errorf("results = %v", names)
	}
}

func TestStartSearchRejectsInvalidConfig(t *testing.T) {
	srv := NewServer(nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", "{"},
		{"missing root", `{"root": "/definitely/not/here", "keywords": ["x"]}`},
		{"no keywords", `{"root": "` + filepath.ToSlash(t.TempDir()) + `", "keywords": []}`},
		{"unknown profile", `{"root": "` + filepath.ToSlash(t.TempDir()) + `", "keywords": ["x"], "profile": "extreme"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, body %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestUnknownSearch(t *testing.T) {
	srv := NewServer(nil)
	for _, path := range []string{"/api/search/nope", "/api/search/nope/results"} {
		if rec := do(t, srv, http.MethodGet, path, nil); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
	if rec := do(t, srv, http.MethodDelete, "/api/search/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("DELETE = %d", rec.Code)
	}
}

func TestStopSearch(t *testing.T) {
	srv := NewServer(nil)
	defer srv.Shutdown(context.Background())

	id := startSearch(t, srv, map[string]any{
		"root":     fixtureRoot(t),
		"keywords": []string{"budget"},
	})
	if rec := do(t, srv, http.MethodDelete, "/api/search/"+id, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("stop: %d", rec.Code)
	}

	status := waitTerminal(t, srv, id)
	// The fixture is small enough to finish before the stop lands.
	if s := status["state"]; s != "stopped" && s != "completed" {
		t.Errorf("state = %v", s)
	}
	if rec := do(t, srv, http.MethodGet, "/api/search/"+id+"/results", nil); rec.Code != http.StatusOK {
		t.Errorf("results after stop: %d", rec.Code)
	}
}

func TestEventStream(t *testing.T) {
	srv := NewServer(nil)
	defer srv.Shutdown(context.Background())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	id := startSearch(t, srv, map[string]any{
		"root":     fixtureRoot(t),
		"keywords": []string{"budget"},
	})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/search/" + id + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var kinds []string
	for {
		var ev struct {
			Kind    string `json:"kind"`
			Percent int    `json:"percent"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			t.Fatalf("read: %v", err)
		}
		kinds = append(kinds, ev.Kind)
	}

	if len(kinds) < 2 {
		t.Fatalf("events = %v", kinds)
	}
	if kinds[len(kinds)-1] != "completed" {
		t.Errorf("last event = %s", kinds[len(kinds)-1])
	}
	if kinds[len(kinds)-2] != "status" {
		t.Errorf("event before terminal = %s", kinds[len(kinds)-2])
	}
}

func TestShutdownRefusesNewSearches(t *testing.T) {
	srv := NewServer(nil)
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	rec := do(t, srv, http.MethodPost, "/api/search", map[string]any{
		"root":     t.TempDir(),
		"keywords": []string{"x"},
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}
