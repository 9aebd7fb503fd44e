package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aiwhisperer/aiwhisperer/internal/rfc"
	"github.com/aiwhisperer/aiwhisperer/internal/workspace"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

func newTestStores(t *testing.T) (*Store, *rfc.Store) {
	t.Helper()
	paths, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := paths.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	rfcs := rfc.NewStore(paths, nil, nil)
	s := NewStore(paths, nil, rfcs, nil)
	s.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return s, rfcs
}

// planJSON builds a schema-valid plan with one red task per name. Statuses
// map task name to an explicit status, if any.
func planJSON(statuses map[string]string, taskNames ...string) json.RawMessage {
	var tasks []string
	for _, name := range taskNames {
		status := ""
		if st, ok := statuses[name]; ok {
			status = fmt.Sprintf(`,"status":%q`, st)
		}
		tasks = append(tasks, fmt.Sprintf(
			`{"name":%q,"description":"do %s","dependencies":[],"tdd_phase":"red","validation_criteria":["tests pass"]%s}`,
			name, name, status))
	}
	return json.RawMessage(fmt.Sprintf(`{
		"plan_type": "standard",
		"title": "Test plan",
		"tdd_phases": {"red": ["write tests"], "green": ["implement"], "refactor": ["clean up"]},
		"tasks": [%s]
	}`, strings.Join(tasks, ",")))
}

func TestPrepareHandsOffContentAndHash(t *testing.T) {
	s, rfcs := newTestStores(t)
	meta, err := rfcs.Create(context.Background(), "Add caching", "add-caching", "alice")
	if err != nil {
		t.Fatal(err)
	}

	prep, err := s.Prepare(meta.RFCID)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if prep.RFCID != meta.RFCID || prep.RFCContent == "" {
		t.Errorf("preparation = %+v", prep)
	}
	if prep.RFCHash != hashContent(prep.RFCContent) {
		t.Error("hash does not match content")
	}
	if prep.PlanName != "add-caching-plan-2026-03-14" {
		t.Errorf("plan name = %q", prep.PlanName)
	}
}

func TestSaveWritesPlanAndLinksRFC(t *testing.T) {
	s, rfcs := newTestStores(t)
	ctx := context.Background()
	meta, _ := rfcs.Create(ctx, "Feature", "feature", "alice")

	p, err := s.Save(ctx, meta.RFCID, "feature-plan", planJSON(nil, "task-a", "task-b"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(p.Tasks) != 2 || p.SourceRFC.RFCID != meta.RFCID {
		t.Errorf("plan = %+v", p)
	}

	doc, _ := rfcs.Read(meta.RFCID)
	if len(doc.Meta.DerivedPlans) != 1 || doc.Meta.DerivedPlans[0] != "feature-plan" {
		t.Errorf("derived plans = %v", doc.Meta.DerivedPlans)
	}

	if _, err := s.Save(ctx, meta.RFCID, "feature-plan", planJSON(nil, "task-a")); err == nil {
		t.Error("duplicate plan name accepted")
	}
}

func TestSaveRejectsInvalidPlan(t *testing.T) {
	s, rfcs := newTestStores(t)
	ctx := context.Background()
	meta, _ := rfcs.Create(ctx, "Feature", "feature", "alice")

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{broken`},
		{"missing tdd_phases", `{"plan_type":"standard","title":"x","tasks":[{"name":"t","description":"","dependencies":[],"tdd_phase":"red","validation_criteria":[]}]}`},
		{"empty tasks", `{"plan_type":"standard","title":"x","tdd_phases":{"red":[],"green":[],"refactor":[]},"tasks":[]}`},
		{"bad phase", `{"plan_type":"standard","title":"x","tdd_phases":{"red":[],"green":[],"refactor":[]},"tasks":[{"name":"t","description":"","dependencies":[],"tdd_phase":"blue","validation_criteria":[]}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Save(ctx, meta.RFCID, "p-"+tc.name, json.RawMessage(tc.raw))
			te, ok := err.(*models.ToolError)
			if !ok {
				t.Fatalf("error = %v", err)
			}
			if te.Type != models.ErrSyntax && te.Type != models.ErrInvalidArguments {
				t.Errorf("type = %s", te.Type)
			}
		})
	}

	// Nothing should have been written for rejected plans.
	names, _ := s.List(models.RFCInProgress)
	if len(names) != 0 {
		t.Errorf("rejected plans left directories: %v", names)
	}
}

func TestReadReportsDrift(t *testing.T) {
	s, rfcs := newTestStores(t)
	ctx := context.Background()
	meta, _ := rfcs.Create(ctx, "Drifty", "drifty", "alice")
	s.Save(ctx, meta.RFCID, "drifty-plan", planJSON(nil, "task-a"))

	doc, err := s.Read("drifty-plan")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if doc.Drift {
		t.Error("fresh plan reports drift")
	}

	if _, err := rfcs.UpdateContent(ctx, meta.RFCID, "# RFC: Drifty\n\nrewritten requirements\n"); err != nil {
		t.Fatal(err)
	}
	doc, _ = s.Read("drifty-plan")
	if !doc.Drift {
		t.Error("edited rfc did not surface as drift")
	}
}

func TestUpdateFromRFCNoopWhenUnchanged(t *testing.T) {
	s, rfcs := newTestStores(t)
	ctx := context.Background()
	meta, _ := rfcs.Create(ctx, "Stable", "stable", "alice")
	s.Save(ctx, meta.RFCID, "stable-plan", planJSON(nil, "task-a"))

	called := false
	gen := func(context.Context, string, *models.Plan) (json.RawMessage, error) {
		called = true
		return planJSON(nil, "task-a"), nil
	}

	_, changed, err := s.UpdateFromRFC(ctx, "stable-plan", gen, false, true)
	if err != nil {
		t.Fatalf("UpdateFromRFC: %v", err)
	}
	if changed || called {
		t.Errorf("changed = %v, generator called = %v; want no-op", changed, called)
	}
}

func TestUpdateFromRFCRegeneratesAndPreservesProgress(t *testing.T) {
	s, rfcs := newTestStores(t)
	ctx := context.Background()
	meta, _ := rfcs.Create(ctx, "Evolving", "evolving", "alice")
	s.Save(ctx, meta.RFCID, "evolving-plan",
		planJSON(map[string]string{"task-a": "completed"}, "task-a", "task-b"))

	rfcs.UpdateContent(ctx, meta.RFCID, "# RFC: Evolving\n\nnew requirement\n")

	var sawPrior *models.Plan
	gen := func(_ context.Context, content string, prior *models.Plan) (json.RawMessage, error) {
		sawPrior = prior
		if !strings.Contains(content, "new requirement") {
			t.Errorf("generator got stale rfc content")
		}
		return planJSON(nil, "task-a", "task-c"), nil
	}

	updated, changed, err := s.UpdateFromRFC(ctx, "evolving-plan", gen, false, true)
	if err != nil {
		t.Fatalf("UpdateFromRFC: %v", err)
	}
	if !changed {
		t.Fatal("changed rfc reported as no-op")
	}
	if sawPrior == nil || len(sawPrior.Tasks) != 2 {
		t.Error("generator did not receive the prior plan")
	}
	if updated.Tasks[0].Name != "task-a" || updated.Tasks[0].Status != models.TaskCompleted {
		t.Errorf("task-a = %+v, want completed status carried over", updated.Tasks[0])
	}
	if updated.Tasks[1].Status != "" {
		t.Errorf("new task-c inherited a status: %q", updated.Tasks[1].Status)
	}
	if len(updated.RefinementHistory) != 1 {
		t.Errorf("refinement history = %v", updated.RefinementHistory)
	}

	// Regeneration re-synced the reference, so drift is cleared.
	doc, _ := s.Read("evolving-plan")
	if doc.Drift {
		t.Error("regenerated plan still reports drift")
	}
	if len(doc.Ref.SyncHistory) != 1 || !doc.Ref.SyncHistory[0].ChangesDetected {
		t.Errorf("sync history = %+v", doc.Ref.SyncHistory)
	}
}

func TestUpdateFromRFCForceWithoutPreserve(t *testing.T) {
	s, rfcs := newTestStores(t)
	ctx := context.Background()
	meta, _ := rfcs.Create(ctx, "Forced", "forced", "alice")
	s.Save(ctx, meta.RFCID, "forced-plan",
		planJSON(map[string]string{"task-a": "in_progress"}, "task-a"))

	gen := func(context.Context, string, *models.Plan) (json.RawMessage, error) {
		return planJSON(nil, "task-a"), nil
	}
	updated, changed, err := s.UpdateFromRFC(ctx, "forced-plan", gen, true, false)
	if err != nil {
		t.Fatalf("UpdateFromRFC: %v", err)
	}
	if !changed {
		t.Error("force did not regenerate")
	}
	if updated.Tasks[0].Status != "" {
		t.Errorf("status carried over despite preserve_progress=false: %q", updated.Tasks[0].Status)
	}
}

func TestMovePlanBetweenStatuses(t *testing.T) {
	s, rfcs := newTestStores(t)
	ctx := context.Background()
	meta, _ := rfcs.Create(ctx, "Mover", "mover", "alice")
	s.Save(ctx, meta.RFCID, "mover-plan", planJSON(nil, "task-a"))

	if err := s.Move(ctx, "mover-plan", models.RFCArchived); err != nil {
		t.Fatalf("Move: %v", err)
	}
	archived, _ := s.List(models.RFCArchived)
	if len(archived) != 1 || archived[0] != "mover-plan" {
		t.Errorf("archived = %v", archived)
	}
	inProgress, _ := s.List(models.RFCInProgress)
	if len(inProgress) != 0 {
		t.Errorf("in_progress = %v", inProgress)
	}

	// Archived plans are still readable.
	doc, err := s.Read("mover-plan")
	if err != nil {
		t.Fatalf("Read after move: %v", err)
	}
	if doc.Status != models.RFCArchived {
		t.Errorf("status = %s", doc.Status)
	}

	if err := s.Move(ctx, "mover-plan", models.PlanStatus("done")); err == nil {
		t.Error("unknown status accepted")
	}
}

func TestDeleteClearsRFCLink(t *testing.T) {
	s, rfcs := newTestStores(t)
	ctx := context.Background()
	meta, _ := rfcs.Create(ctx, "Deletable", "deletable", "alice")
	s.Save(ctx, meta.RFCID, "deletable-plan", planJSON(nil, "task-a"))

	if err := s.Delete(ctx, "deletable-plan"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("deletable-plan"); err == nil {
		t.Error("deleted plan still readable")
	}
	doc, _ := rfcs.Read(meta.RFCID)
	if len(doc.Meta.DerivedPlans) != 0 {
		t.Errorf("derived plans = %v", doc.Meta.DerivedPlans)
	}

	// With the link cleared the RFC deletes without force.
	if err := rfcs.Delete(ctx, meta.RFCID, false); err != nil {
		t.Errorf("rfc delete after plan delete: %v", err)
	}
}

func TestReadUnknownPlan(t *testing.T) {
	s, _ := newTestStores(t)
	_, err := s.Read("absent-plan")
	te, ok := err.(*models.ToolError)
	if !ok || te.Type != models.ErrFileNotFound {
		t.Errorf("error = %v, want file_not_found", err)
	}
}

func TestPlanFilesOnDisk(t *testing.T) {
	s, rfcs := newTestStores(t)
	ctx := context.Background()
	meta, _ := rfcs.Create(ctx, "Disk", "disk", "alice")
	s.Save(ctx, meta.RFCID, "disk-plan", planJSON(nil, "task-a"))

	dir, _, err := s.findOrErr("disk-plan")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{planFile, referenceFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
}
