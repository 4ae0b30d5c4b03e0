package sessions_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"labbench/internal/adapters/sessions"
	"labbench/internal/blob"
	"labbench/internal/core"
	"labbench/internal/experiments"
	"labbench/internal/labreport"
)

func setupHandler(t *testing.T) (*sessions.Handler, blob.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := core.OpenSessionStore(ctx, core.StorageConfig{Driver: core.StorageMemory})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	reg := experiments.Default()
	cfg, _ := reg.Lookup("salt-analysis")
	engine, err := core.NewEngine(cfg)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if _, err := engine.Place(ctx, "test_tube"); err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := engine.Place(ctx, "burner"); err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := core.SaveSession(ctx, store, "s-1", engine); err != nil {
		t.Fatalf("save: %v", err)
	}
	reports := blob.NewMemory()
	h := sessions.NewHandler(reg, store, reports)
	h.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return h, reports
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandlerListsExperimentsAndSessions(t *testing.T) {
	h, _ := setupHandler(t)
	resp := serve(h, http.MethodGet, "/api/v1/experiments")
	var exps struct {
		Experiments []string `json:"experiments"`
	}
	if resp.Code != http.StatusOK || json.Unmarshal(resp.Body.Bytes(), &exps) != nil || len(exps.Experiments) != 3 {
		t.Fatalf("unexpected experiments response %d %s", resp.Code, resp.Body.String())
	}

	resp = serve(h, http.MethodGet, "/api/v1/sessions/")
	var list struct {
		Sessions []struct {
			ID   string `json:"id"`
			Step int    `json:"step"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Sessions) != 1 || list.Sessions[0].ID != "s-1" || list.Sessions[0].Step != 1 {
		t.Fatalf("unexpected sessions %+v", list.Sessions)
	}
	if resp := serve(h, http.MethodPost, "/api/v1/experiments"); resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}

func TestHandlerReportAndPublish(t *testing.T) {
	h, reports := setupHandler(t)
	resp := serve(h, http.MethodGet, "/api/v1/sessions/s-1/report")
	var body struct {
		Report labreport.Report `json:"report"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil || resp.Code != http.StatusOK {
		t.Fatalf("report: %d %s", resp.Code, resp.Body.String())
	}
	if body.Report.CurrentStep != "add-salt" || !body.Report.Steps[0].Done || body.Report.Session != "s-1" {
		t.Fatalf("unexpected report %+v", body.Report)
	}

	resp = serve(h, http.MethodPost, "/api/v1/sessions/s-1/report")
	if resp.Code != http.StatusCreated {
		t.Fatalf("publish: %d %s", resp.Code, resp.Body.String())
	}
	if _, err := reports.Head(context.Background(), labreport.Key("salt-analysis", "s-1")); err != nil {
		t.Fatalf("expected published report: %v", err)
	}
}

func TestHandlerSessionErrors(t *testing.T) {
	h, _ := setupHandler(t)
	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/v1/sessions/missing", http.StatusNotFound},
		{http.MethodGet, "/api/v1/sessions/missing/report", http.StatusNotFound},
		{http.MethodGet, "/api/v1/sessions/s-1/steps", http.StatusNotFound},
		{http.MethodPut, "/api/v1/sessions/s-1", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/sessions/s-1", http.StatusNoContent},
		{http.MethodDelete, "/api/v1/sessions/s-1", http.StatusNotFound},
	}
	for _, tc := range cases {
		if resp := serve(h, tc.method, tc.path); resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d (%s)", tc.method, tc.path, tc.want, resp.Code, resp.Body.String())
		}
	}

	h.Reports = nil
	if resp := serve(h, http.MethodPost, "/api/v1/sessions/s-1/report"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without report storage, got %d", resp.Code)
	}
}
