package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rpanode/internal/api"
)

func TestClientStatusSendsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "unauthorized"})
			return
		}
		_ = json.NewEncoder(w).Encode(api.NodeStatus{Running: true, NodeID: "node-1"})
	}))
	defer srv.Close()

	status, err := api.NewClient(srv.URL+"/", "secret").Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.NodeID != "node-1" {
		t.Fatalf("unexpected status %+v", status)
	}

	_, err = api.NewClient(srv.URL, "wrong").Status(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unauthorized (401)") {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestClientRunsAndInterrupt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/runs":
			if r.URL.Query().Get("limit") != "5" {
				t.Errorf("expected limit=5, got %q", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(api.RunListResponse{Runs: []api.Run{{ID: "r1", Status: "completed"}}})
		case r.Method == http.MethodPost && r.URL.Path == "/api/flow/interrupt":
			_ = json.NewEncoder(w).Encode(api.InterruptResponse{Interrupted: true, Message: "stop requested"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "")
	runs, err := client.Runs(context.Background(), 5)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "r1" {
		t.Fatalf("unexpected runs %+v", runs)
	}
	resp, err := client.Interrupt(context.Background())
	if err != nil || !resp.Interrupted {
		t.Fatalf("Interrupt: %+v, %v", resp, err)
	}
	if _, err := client.Run(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestClientUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := api.NewClient(url, "").Status(context.Background())
	if !errors.Is(err, api.ErrDaemonUnavailable) {
		t.Fatalf("expected ErrDaemonUnavailable, got %v", err)
	}
}
