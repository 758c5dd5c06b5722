package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rpanode/internal/api"
)

func sampleStatus() api.NodeStatus {
	return api.NodeStatus{
		Running: true,
		PID:     4242,
		NodeID:  "6f1c2d3e-0000-4000-8000-000000000001",
		Flow: api.FlowStatus{
			Status:   "running",
			Flow:     "patient_list",
			Hospital: "JACKSON",
			Step:     "open_census",
		},
		Cycle: api.CycleStatus{
			Phase:      "running",
			Assigned:   true,
			DoctorID:   "doc-7",
			DoctorName: "Dr. Rivera",
			Hospitals:  []string{"JACKSON"},
			Cycles:     3,
			LastCycle: &api.CycleSummary{
				Tasks: []api.TaskStatus{
					{Hospital: "JACKSON", Stage: "patient_list", Succeeded: true, Names: 12, DurationSeconds: 95},
				},
			},
		},
		StageHealth: []api.StageHealth{
			{Name: "jackson", Ready: true},
			{Name: "steward", Ready: false, Detail: "catalog section missing"},
		},
		Dependencies: []api.DependencyStatus{
			{Name: "Screen driver", Command: "rpa-screen", Available: true},
		},
	}
}

func TestStatusCommandRendersSections(t *testing.T) {
	addr := newAPIServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		writeJSONBody(t, w, sampleStatus())
	}))
	env := setupCLITestEnv(t, addr)

	out, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (pid 4242)")
	requireContains(t, out, "Dr. Rivera (doc-7)")
	requireContains(t, out, "open_census")
	requireContains(t, out, "catalog section missing")
	requireContains(t, out, "All available")
	requireContains(t, out, "Last cycle")
	requireContains(t, out, "patient_list")
}

func TestStatusCommandJSON(t *testing.T) {
	addr := newAPIServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(t, w, sampleStatus())
	}))
	env := setupCLITestEnv(t, addr)

	out, err := runCLI(t, env, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var decoded api.NodeStatus
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if decoded.NodeID != sampleStatus().NodeID || decoded.Cycle.Cycles != 3 {
		t.Fatalf("unexpected decoded status %+v", decoded)
	}
}

func TestStatusCommandReportsStoppedDaemon(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()
	env := setupCLITestEnv(t, addr)

	_, err := runCLI(t, env, "status")
	if err == nil {
		t.Fatal("expected error when daemon is not running")
	}
	if !strings.Contains(err.Error(), "not running") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRunsCommandTableAndLimit(t *testing.T) {
	var gotLimit string
	addr := newAPIServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		writeJSONBody(t, w, api.RunListResponse{Runs: []api.Run{
			{ID: "r1", Flow: "batch_summary", Hospital: "STEWARD", Status: "failed", Step: "open_document", Error: "template not found", StartedAt: "2026-10-01T08:00:00.000Z", DurationSeconds: 42},
		}})
	}))
	env := setupCLITestEnv(t, addr)

	out, err := runCLI(t, env, "runs", "-n", "5")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if gotLimit != "5" {
		t.Fatalf("expected limit=5, got %q", gotLimit)
	}
	requireContains(t, out, "batch_summary")
	requireContains(t, out, "STEWARD")
	requireContains(t, out, "open_document: template not found")
}

func TestRunsCommandEmpty(t *testing.T) {
	addr := newAPIServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(t, w, api.RunListResponse{})
	}))
	env := setupCLITestEnv(t, addr)

	out, err := runCLI(t, env, "runs")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	requireContains(t, out, "No runs recorded")
}

func TestInterruptCommandPosts(t *testing.T) {
	var method string
	addr := newAPIServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		writeJSONBody(t, w, api.InterruptResponse{Interrupted: true, Message: "stop requested"})
	}))
	env := setupCLITestEnv(t, addr)

	out, err := runCLI(t, env, "interrupt")
	if err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	if method != http.MethodPost {
		t.Fatalf("expected POST, got %s", method)
	}
	requireContains(t, out, "stop requested")
}

func TestAPIErrorBodySurfaces(t *testing.T) {
	addr := newAPIServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "unauthorized"})
	}))
	env := setupCLITestEnv(t, addr)

	_, err := runCLI(t, env, "runs")
	if err == nil || !strings.Contains(err.Error(), "unauthorized (401)") {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}
