// Package labreport summarises an experiment session and publishes the
// summary as JSON to blob storage.
package labreport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"labbench/internal/blob"
	"labbench/internal/core"
	"labbench/pkg/domain"
)

// ContentType is the media type reports are stored with.
const ContentType = "application/json"

// Report is the learner-facing record of one session.
type Report struct {
	Experiment   string             `json:"experiment"`
	Name         string             `json:"name"`
	Session      string             `json:"session,omitempty"`
	Complete     bool               `json:"complete"`
	CurrentStep  string             `json:"current_step"`
	Steps        []StepEntry        `json:"steps"`
	Observations []ObservationEntry `json:"observations"`
	Equipment    []EquipmentEntry   `json:"equipment"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// StepEntry marks whether a step was reached and passed.
type StepEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// ObservationEntry is one filled observation slot.
type ObservationEntry struct {
	Slot   string   `json:"slot"`
	Text   string   `json:"text,omitempty"`
	Number *float64 `json:"number,omitempty"`
}

// EquipmentEntry lists an instance and the amounts it holds.
type EquipmentEntry struct {
	ID       string             `json:"id"`
	Contents map[string]float64 `json:"contents,omitempty"`
}

// Build summarises state against the experiment definition.
func Build(cfg domain.ExperimentConfig, sessionID string, state core.State, at time.Time) Report {
	r := Report{
		Experiment:  cfg.ID,
		Name:        cfg.Name,
		Session:     sessionID,
		Complete:    state.StepComplete,
		CurrentStep: state.Step.ID,
		GeneratedAt: at.UTC(),
	}
	for i, step := range cfg.Steps {
		done := i < state.StepIndex || (i == state.StepIndex && state.StepComplete)
		r.Steps = append(r.Steps, StepEntry{ID: step.ID, Title: step.Title, Done: done})
	}
	slots := make([]string, 0, len(state.Observations))
	for slot, obs := range state.Observations {
		if obs.Observed() {
			slots = append(slots, slot)
		}
	}
	sort.Strings(slots)
	for _, slot := range slots {
		obs := state.Observations[slot]
		r.Observations = append(r.Observations, ObservationEntry{Slot: slot, Text: obs.Text, Number: obs.Number})
	}
	for _, id := range state.World.InstanceIDs() {
		inst := state.World.Instances[id]
		entry := EquipmentEntry{ID: string(id)}
		for _, chem := range inst.Chemicals() {
			if entry.Contents == nil {
				entry.Contents = make(map[string]float64)
			}
			entry.Contents[string(chem)] = inst.Amount(chem)
		}
		r.Equipment = append(r.Equipment, entry)
	}
	return r
}

// Key returns the blob key a session report is stored under.
func Key(experiment, sessionID string) string {
	return fmt.Sprintf("reports/%s/%s.json", experiment, sessionID)
}

// Publish writes the report, replacing an earlier version for the session.
func Publish(ctx context.Context, store blob.Store, report Report) (blob.Object, error) {
	if report.Session == "" {
		return blob.Object{}, errors.New("report session id required")
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return blob.Object{}, fmt.Errorf("encode report: %w", err)
	}
	obj, err := store.Put(ctx, Key(report.Experiment, report.Session), bytes.NewReader(data), blob.PutOptions{
		ContentType: ContentType,
		Metadata: map[string]string{
			"experiment": report.Experiment,
			"session":    report.Session,
			"complete":   fmt.Sprint(report.Complete),
		},
	})
	if err != nil {
		return blob.Object{}, fmt.Errorf("publish report %s: %w", report.Session, err)
	}
	return obj, nil
}

// Fetch reads a published report back.
func Fetch(ctx context.Context, store blob.Store, experiment, sessionID string) (Report, error) {
	_, rc, err := store.Get(ctx, Key(experiment, sessionID))
	if err != nil {
		return Report{}, err
	}
	defer func() { _ = rc.Close() }()
	var r Report
	if err := json.NewDecoder(rc).Decode(&r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}
