package labreport

import (
	"context"
	"errors"
	"testing"
	"time"

	"labbench/internal/blob"
	"labbench/internal/core"
	"labbench/internal/experiments"
)

var reportTime = time.Date(2025, 5, 6, 10, 0, 0, 0, time.UTC)

func phSession(t *testing.T) (*core.Engine, core.State) {
	t.Helper()
	cfg, _ := experiments.Default().Lookup("ph-comparison")
	engine, err := core.NewEngine(cfg)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ctx := context.Background()
	var st core.State
	for i := 0; i < 3; i++ {
		if st, err = engine.Place(ctx, "beaker"); err != nil {
			t.Fatalf("place: %v", err)
		}
	}
	if st, err = engine.AddChemical(ctx, "beaker", "hcl_0_1", 20); err != nil {
		t.Fatalf("add: %v", err)
	}
	if st, err = engine.AddChemical(ctx, "beaker", "ph_paper", 1); err != nil {
		t.Fatalf("paper: %v", err)
	}
	return engine, st
}

func TestBuildSummarisesProgress(t *testing.T) {
	engine, st := phSession(t)
	r := Build(engine.Config(), "s-1", st, reportTime)
	if r.Experiment != "ph-comparison" || r.Session != "s-1" || r.Complete || r.CurrentStep != "fill" {
		t.Fatalf("unexpected header %+v", r)
	}
	if len(r.Steps) != 4 || !r.Steps[0].Done || r.Steps[1].Done {
		t.Fatalf("unexpected steps %+v", r.Steps)
	}
	if len(r.Observations) != 2 || r.Observations[0].Slot != experiments.PaperSlot(1) || r.Observations[1].Slot != experiments.PHSlot(1) {
		t.Fatalf("unexpected observations %+v", r.Observations)
	}
	if n := r.Observations[1].Number; n == nil || *n != 1 {
		t.Fatalf("unexpected pH entry %+v", r.Observations[1])
	}
	if len(r.Equipment) != 3 || r.Equipment[0].Contents["hcl_0_1"] != 20 || r.Equipment[1].Contents != nil {
		t.Fatalf("unexpected equipment %+v", r.Equipment)
	}
}

func TestPublishAndFetch(t *testing.T) {
	ctx := context.Background()
	engine, st := phSession(t)
	mock, err := blob.NewS3Mock("reports")
	if err != nil {
		t.Fatalf("s3 mock: %v", err)
	}
	for _, store := range []blob.Store{blob.NewMemory(), mock} {
		report := Build(engine.Config(), "s-1", st, reportTime)
		obj, err := Publish(ctx, store, report)
		if err != nil {
			t.Fatalf("%s publish: %v", store.Driver(), err)
		}
		if obj.Key != "reports/ph-comparison/s-1.json" || obj.ContentType != ContentType {
			t.Fatalf("%s: unexpected object %+v", store.Driver(), obj)
		}
		report.Complete = true
		if _, err := Publish(ctx, store, report); err != nil {
			t.Fatalf("%s republish: %v", store.Driver(), err)
		}
		got, err := Fetch(ctx, store, "ph-comparison", "s-1")
		if err != nil {
			t.Fatalf("%s fetch: %v", store.Driver(), err)
		}
		if !got.Complete || len(got.Observations) != 2 || !got.GeneratedAt.Equal(reportTime) {
			t.Fatalf("%s: unexpected report %+v", store.Driver(), got)
		}
		if _, err := Fetch(ctx, store, "ph-comparison", "nobody"); !errors.Is(err, blob.ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", store.Driver(), err)
		}
	}
	if _, err := Publish(ctx, blob.NewMemory(), Report{Experiment: "x"}); err == nil {
		t.Fatalf("expected missing session error")
	}
}
