package rfc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aiwhisperer/aiwhisperer/internal/workspace"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

func newTestStore(t *testing.T) (*Store, *workspace.Paths) {
	t.Helper()
	paths, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := paths.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	s := NewStore(paths, nil, nil)
	s.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return s, paths
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.Create(ctx, "Add caching", "add-caching", "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.RFCID != "RFC-2026-03-14-0001" {
		t.Errorf("id = %s", first.RFCID)
	}
	second, err := s.Create(ctx, "Another", "another", "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if second.RFCID != "RFC-2026-03-14-0002" {
		t.Errorf("id = %s", second.RFCID)
	}
}

func TestCreateReusesSmallestFreeID(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, _ := s.Create(ctx, "A", "a", "alice")
	b, _ := s.Create(ctx, "B", "b", "alice")
	if err := s.Delete(ctx, a.RFCID, false); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	c, err := s.Create(ctx, "C", "c", "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.RFCID != a.RFCID {
		t.Errorf("id = %s, want freed %s (b is %s)", c.RFCID, a.RFCID, b.RFCID)
	}
}

func TestCreateWritesTemplateAndSidecar(t *testing.T) {
	s, paths := newTestStore(t)

	meta, err := s.Create(context.Background(), "Add Caching!", "Add Caching!", "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if meta.ShortName != "add-caching" {
		t.Errorf("short name = %q", meta.ShortName)
	}
	if meta.Filename != "add-caching-2026-03-14.md" {
		t.Errorf("filename = %q", meta.Filename)
	}

	md := filepath.Join(paths.RFCDir(models.RFCInProgress), meta.Filename)
	content, err := os.ReadFile(md)
	if err != nil {
		t.Fatalf("read rfc: %v", err)
	}
	for _, want := range []string{"# RFC: Add Caching!", "**Status**: in_progress", "## Open Questions"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("markdown missing %q", want)
		}
	}
	if _, err := os.Stat(strings.TrimSuffix(md, ".md") + ".json"); err != nil {
		t.Errorf("sidecar missing: %v", err)
	}
}

func TestCreateTemplateHasStandardSections(t *testing.T) {
	s, paths := newTestStore(t)

	meta, err := s.Create(context.Background(), "Sectioned", "sectioned", "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(paths.RFCDir(models.RFCInProgress), meta.Filename))
	if err != nil {
		t.Fatalf("read rfc: %v", err)
	}

	for _, want := range []string{
		"**Last Updated**: " + meta.Updated,
		"## Summary",
		"## Background",
		"## Requirements",
		"## Technical Considerations",
		"## Implementation Approach",
		"## Open Questions",
		"## Acceptance Criteria",
		"## Related RFCs",
		"## Refinement History",
	} {
		if !strings.Contains(string(content), want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestCreateDisambiguatesFilenames(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.Create(ctx, "One", "same", "alice")
	second, err := s.Create(ctx, "Two", "same", "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if second.Filename != "same-2026-03-14-2.md" {
		t.Errorf("filename = %q", second.Filename)
	}
}

func TestMoveRewritesStatusAndRelocatesPair(t *testing.T) {
	s, paths := newTestStore(t)
	ctx := context.Background()

	meta, _ := s.Create(ctx, "Movable", "movable", "alice")
	moved, err := s.Move(ctx, meta.RFCID, models.RFCArchived, "superseded")
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if moved.Status != models.RFCArchived {
		t.Errorf("status = %s", moved.Status)
	}
	if len(moved.StatusHistory) != 1 || moved.StatusHistory[0].Reason != "superseded" {
		t.Errorf("history = %+v", moved.StatusHistory)
	}

	// Exactly one copy of the pair, in the target folder.
	oldMD := filepath.Join(paths.RFCDir(models.RFCInProgress), meta.Filename)
	newMD := filepath.Join(paths.RFCDir(models.RFCArchived), meta.Filename)
	if _, err := os.Stat(oldMD); !os.IsNotExist(err) {
		t.Error("markdown left behind in in_progress")
	}
	content, err := os.ReadFile(newMD)
	if err != nil {
		t.Fatalf("read moved rfc: %v", err)
	}
	if !strings.Contains(string(content), "**Status**: archived") {
		t.Error("markdown status line not rewritten")
	}
	if _, err := os.Stat(strings.TrimSuffix(newMD, ".md") + ".json"); err != nil {
		t.Errorf("sidecar did not move: %v", err)
	}
}

func TestMoveStampsLastUpdated(t *testing.T) {
	s, paths := newTestStore(t)
	ctx := context.Background()

	meta, _ := s.Create(ctx, "Stamped", "stamped", "alice")
	s.now = func() time.Time { return time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC) }

	moved, err := s.Move(ctx, meta.RFCID, models.RFCArchived, "")
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(paths.RFCDir(models.RFCArchived), meta.Filename))
	if err != nil {
		t.Fatalf("read moved rfc: %v", err)
	}
	if !strings.Contains(string(content), "**Last Updated**: "+moved.Updated) {
		t.Error("markdown Last Updated not rewritten on move")
	}
	if strings.Contains(string(content), "**Last Updated**: "+meta.Updated) {
		t.Error("markdown still carries the pre-move stamp")
	}
}

func TestMoveToCurrentStatusIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	meta, _ := s.Create(ctx, "Stay", "stay", "alice")
	moved, err := s.Move(ctx, meta.RFCID, models.RFCInProgress, "")
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if len(moved.StatusHistory) != 0 {
		t.Errorf("no-op move appended history: %+v", moved.StatusHistory)
	}
}

func TestMoveRejectsUnknownStatus(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Move(context.Background(), "RFC-2026-03-14-0001", models.RFCStatus("done"), "")
	te, ok := err.(*models.ToolError)
	if !ok || te.Type != models.ErrInvalidArguments {
		t.Errorf("error = %v, want invalid_arguments", err)
	}
}

func TestReadFindsArchivedRFCs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	meta, _ := s.Create(ctx, "Archived", "archived", "alice")
	s.Move(ctx, meta.RFCID, models.RFCArchived, "")

	doc, err := s.Read(meta.RFCID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if doc.Meta.Status != models.RFCArchived {
		t.Errorf("status = %s", doc.Meta.Status)
	}
}

func TestReadUnknownID(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Read("RFC-2026-03-14-0042")
	te, ok := err.(*models.ToolError)
	if !ok || te.Type != models.ErrFileNotFound {
		t.Fatalf("error = %v, want file_not_found", err)
	}
	if len(te.Suggestions) == 0 {
		t.Error("lookup failure has no suggestion")
	}
}

func TestUpdateContentBumpsTimestamp(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	meta, _ := s.Create(ctx, "Editable", "editable", "alice")
	s.now = func() time.Time { return time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC) }

	updated, err := s.UpdateContent(ctx, meta.RFCID, "# RFC: Editable\n\nrewritten\n")
	if err != nil {
		t.Fatalf("UpdateContent: %v", err)
	}
	if updated.Updated == meta.Updated {
		t.Error("updated stamp did not change")
	}

	doc, _ := s.Read(meta.RFCID)
	if doc.Content != "# RFC: Editable\n\nrewritten\n" {
		t.Errorf("content = %q", doc.Content)
	}
}

func TestUpdateContentStampsMarkdown(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	meta, _ := s.Create(ctx, "Editable", "editable", "alice")
	s.now = func() time.Time { return time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC) }

	updated, err := s.UpdateContent(ctx, meta.RFCID,
		"# RFC: Editable\n\n**Last Updated**: "+meta.Updated+"\n\nrewritten\n")
	if err != nil {
		t.Fatalf("UpdateContent: %v", err)
	}

	doc, _ := s.Read(meta.RFCID)
	if !strings.Contains(doc.Content, "**Last Updated**: "+updated.Updated) {
		t.Error("markdown Last Updated not rewritten on update")
	}
	if strings.Contains(doc.Content, "**Last Updated**: "+meta.Updated) {
		t.Error("markdown still carries the stale stamp")
	}
}

func TestDeleteGuardsDerivedPlans(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	meta, _ := s.Create(ctx, "Guarded", "guarded", "alice")
	if err := s.AddDerivedPlan(meta.RFCID, "guarded-plan"); err != nil {
		t.Fatalf("AddDerivedPlan: %v", err)
	}

	err := s.Delete(ctx, meta.RFCID, false)
	te, ok := err.(*models.ToolError)
	if !ok || te.Type != models.ErrConflictingOptions {
		t.Fatalf("error = %v, want conflicting_options", err)
	}

	if err := s.Delete(ctx, meta.RFCID, true); err != nil {
		t.Fatalf("forced Delete: %v", err)
	}
	if _, err := s.Read(meta.RFCID); err == nil {
		t.Error("deleted rfc still readable")
	}
}

func TestDerivedPlanBookkeeping(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	meta, _ := s.Create(ctx, "Planned", "planned", "alice")
	s.AddDerivedPlan(meta.RFCID, "plan-a")
	s.AddDerivedPlan(meta.RFCID, "plan-a") // idempotent
	s.AddDerivedPlan(meta.RFCID, "plan-b")

	doc, _ := s.Read(meta.RFCID)
	if len(doc.Meta.DerivedPlans) != 2 {
		t.Errorf("derived plans = %v", doc.Meta.DerivedPlans)
	}

	s.RemoveDerivedPlan(meta.RFCID, "plan-a")
	doc, _ = s.Read(meta.RFCID)
	if len(doc.Meta.DerivedPlans) != 1 || doc.Meta.DerivedPlans[0] != "plan-b" {
		t.Errorf("derived plans = %v", doc.Meta.DerivedPlans)
	}

	if err := s.RemoveDerivedPlan("RFC-2026-03-14-0099", "plan-x"); err != nil {
		t.Errorf("remove on missing rfc = %v, want nil", err)
	}

	if err := s.Delete(ctx, meta.RFCID, false); err == nil {
		t.Error("delete succeeded while a derived plan remains")
	}
}

func TestListByStatus(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, _ := s.Create(ctx, "A", "a", "alice")
	s.Create(ctx, "B", "b", "alice")
	s.Move(ctx, a.RFCID, models.RFCArchived, "")

	inProgress, err := s.List(models.RFCInProgress)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(inProgress) != 1 || inProgress[0].Title != "B" {
		t.Errorf("in_progress = %+v", inProgress)
	}
	archived, _ := s.List(models.RFCArchived)
	if len(archived) != 1 || archived[0].Title != "A" {
		t.Errorf("archived = %+v", archived)
	}

	if _, err := s.List(models.RFCStatus("done")); err == nil {
		t.Error("unknown status accepted")
	}
}
