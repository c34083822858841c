package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/jobs"
)

func TestClip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short string unchanged", "abc", 10, "abc"},
		{"exact length unchanged", "abcde", 5, "abcde"},
		{"long string clipped", "abcdefghij", 8, "abcde..."},
		{"tiny max hard-cuts", "abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clip(tt.in, tt.max); got != tt.want {
				t.Errorf("clip(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestFormatMillis(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		want string
	}{
		{"zero hidden", 0, ""},
		{"negative hidden", -5, ""},
		{"sub-second exact", 850, "850ms"},
		{"seconds rounded", 3162, "3.2s"},
		{"minutes rounded", 92450, "1m32.5s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatMillis(tt.ms); got != tt.want {
				t.Errorf("formatMillis(%d) = %q, want %q", tt.ms, got, tt.want)
			}
		})
	}
}

func TestScopeOf(t *testing.T) {
	tests := []struct {
		name  string
		entry historyEntry
		want  string
	}{
		{"plan scope", historyEntry{PlanID: 241}, "plan 241"},
		{"run scope", historyEntry{RunID: 7}, "run 7"},
		{"run list scope", historyEntry{RunIDs: "1,2,3"}, "runs 1,2,3"},
		{"project fallback", historyEntry{ProjectID: 5}, "project 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scopeOf(tt.entry); got != tt.want {
				t.Errorf("scopeOf(%+v) = %q, want %q", tt.entry, got, tt.want)
			}
		})
	}
}

func TestClientSubmitAndPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/reports/v1/jobs":
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			var params jobs.Params
			if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
				t.Fatalf("decode params: %v", err)
			}
			if params.PlanID != 241 {
				t.Errorf("expected plan 241, got %d", params.PlanID)
			}
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(jobs.Snapshot{ID: "job-9", Status: jobs.StateQueued, QueuePosition: 1})
		case "/api/reports/v1/jobs/job-9":
			_ = json.NewEncoder(w).Encode(jobs.Snapshot{ID: "job-9", Status: jobs.StateRunning})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	serverURL = srv.URL
	client := newClient()

	snap, err := client.submit(jobs.Params{ProjectID: 1, PlanID: 241})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.ID != "job-9" || snap.Status != jobs.StateQueued {
		t.Errorf("unexpected submit snapshot: %+v", snap)
	}

	snap, err = client.job("job-9")
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	if snap.Status != jobs.StateRunning {
		t.Errorf("expected running, got %s", snap.Status)
	}
}

func TestClientSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "job queue is full"})
	}))
	defer srv.Close()

	serverURL = srv.URL
	client := newClient()

	_, err := client.submit(jobs.Params{ProjectID: 1, PlanID: 241})
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
}
