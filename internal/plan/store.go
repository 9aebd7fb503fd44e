package plan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/internal/rfc"
	"github.com/aiwhisperer/aiwhisperer/internal/workspace"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

const (
	planFile      = "plan.json"
	referenceFile = "rfc_reference.json"
)

// Generator produces plan JSON from RFC markdown. The live implementation
// prompts the planner agent; tests plug in a canned one. prior is non-nil
// on regeneration.
type Generator func(ctx context.Context, rfcContent string, prior *models.Plan) (json.RawMessage, error)

// Store manages plan directories under .WHISPER/plans/{in_progress,archived}.
// Each plan is a directory holding plan.json and rfc_reference.json.
type Store struct {
	paths  *workspace.Paths
	locker *workspace.DocLocker
	rfcs   *rfc.Store
	logger *observability.Logger

	now func() time.Time
}

// NewStore creates a plan store bound to the RFC store it references.
func NewStore(paths *workspace.Paths, locker *workspace.DocLocker, rfcs *rfc.Store, logger *observability.Logger) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if locker == nil {
		locker = workspace.NewDocLocker()
	}
	return &Store{paths: paths, locker: locker, rfcs: rfcs, logger: logger, now: time.Now}
}

// Preparation is what the planner agent needs to generate a plan.
type Preparation struct {
	RFCID      string `json:"rfc_id"`
	RFCContent string `json:"rfc_content"`
	RFCHash    string `json:"rfc_hash"`
	PlanName   string `json:"plan_name"`
}

// Prepare reads the source RFC and hands its content plus content hash to
// the caller for LLM-driven generation.
func (s *Store) Prepare(rfcID string) (*Preparation, error) {
	doc, err := s.rfcs.Read(rfcID)
	if err != nil {
		return nil, err
	}
	return &Preparation{
		RFCID:      rfcID,
		RFCContent: doc.Content,
		RFCHash:    hashContent(doc.Content),
		PlanName:   planNameFor(doc.Meta.ShortName, s.now()),
	}, nil
}

// Save validates generated plan JSON, writes the plan directory in
// in_progress, and records the plan on the source RFC's sidecar.
func (s *Store) Save(ctx context.Context, rfcID, planName string, raw json.RawMessage) (*models.Plan, error) {
	release := s.locker.Lock("plan:" + planName)
	defer release()

	p, err := ValidatePlan(raw)
	if err != nil {
		return nil, err
	}

	doc, err := s.rfcs.Read(rfcID)
	if err != nil {
		return nil, err
	}

	if dir, _, _ := s.find(planName); dir != "" {
		return nil, models.NewToolError(models.ErrConflictingOptions,
			"plan %q already exists; use update_plan_from_rfc to refresh it", planName)
	}

	now := s.now().Format(time.RFC3339)
	p.SourceRFC = models.SourceRFC{RFCID: rfcID, Title: doc.Meta.Title}
	p.Created = now
	p.Updated = now

	ref := models.RFCReference{
		RFCID:    rfcID,
		RFCHash:  hashContent(doc.Content),
		RFCPath:  filepath.Join("rfc", string(doc.Meta.Status), doc.Meta.Filename),
		LastSync: now,
	}

	dir := filepath.Join(s.paths.PlanDir(models.RFCInProgress), planName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, models.NewToolError(models.ErrPermissionDenied, "create plan dir: %v", err)
	}
	if err := writeJSON(filepath.Join(dir, planFile), p); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(dir, referenceFile), ref); err != nil {
		return nil, err
	}
	if err := s.rfcs.AddDerivedPlan(rfcID, planName); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "plan saved", "plan", planName, "rfc_id", rfcID)
	return p, nil
}

// Document is a plan with its reference and the live drift verdict.
type Document struct {
	Name   string              `json:"name"`
	Status models.PlanStatus   `json:"status"`
	Plan   models.Plan         `json:"plan"`
	Ref    models.RFCReference `json:"rfc_reference"`

	// Drift is true when the source RFC's current hash no longer matches
	// the reference. Readers must surface it; it is never silently absorbed.
	Drift bool `json:"drift"`
}

// Read loads a plan and checks its RFC reference for drift.
func (s *Store) Read(planName string) (*Document, error) {
	dir, status, err := s.findOrErr(planName)
	if err != nil {
		return nil, err
	}

	var p models.Plan
	if err := readJSON(filepath.Join(dir, planFile), &p); err != nil {
		return nil, err
	}
	var ref models.RFCReference
	if err := readJSON(filepath.Join(dir, referenceFile), &ref); err != nil {
		return nil, err
	}

	doc := &Document{Name: planName, Status: status, Plan: p, Ref: ref}
	if rfcDoc, err := s.rfcs.Read(ref.RFCID); err == nil {
		doc.Drift = hashContent(rfcDoc.Content) != ref.RFCHash
	}
	return doc, nil
}

// UpdateFromRFC regenerates the plan when the source RFC changed. With an
// unchanged hash and force unset this is a recorded no-op. preserveProgress
// carries per-task status over to regenerated tasks with matching names.
func (s *Store) UpdateFromRFC(ctx context.Context, planName string, generate Generator, force, preserveProgress bool) (*models.Plan, bool, error) {
	release := s.locker.Lock("plan:" + planName)
	defer release()

	dir, _, err := s.findOrErr(planName)
	if err != nil {
		return nil, false, err
	}

	var prior models.Plan
	if err := readJSON(filepath.Join(dir, planFile), &prior); err != nil {
		return nil, false, err
	}
	var ref models.RFCReference
	if err := readJSON(filepath.Join(dir, referenceFile), &ref); err != nil {
		return nil, false, err
	}

	rfcDoc, err := s.rfcs.Read(ref.RFCID)
	if err != nil {
		return nil, false, err
	}
	currentHash := hashContent(rfcDoc.Content)
	if currentHash == ref.RFCHash && !force {
		return &prior, false, nil
	}

	raw, err := generate(ctx, rfcDoc.Content, &prior)
	if err != nil {
		return nil, false, err
	}
	updated, err := ValidatePlan(raw)
	if err != nil {
		return nil, false, err
	}

	if preserveProgress {
		carryTaskStatus(&prior, updated)
	}

	now := s.now().Format(time.RFC3339)
	updated.SourceRFC = prior.SourceRFC
	updated.Created = prior.Created
	updated.Updated = now
	updated.RefinementHistory = append(prior.RefinementHistory,
		fmt.Sprintf("%s: regenerated from RFC (hash %s -> %s)", now, short(ref.RFCHash), short(currentHash)))

	ref.SyncHistory = append(ref.SyncHistory, models.SyncEntry{
		Timestamp:       now,
		PreviousHash:    ref.RFCHash,
		NewHash:         currentHash,
		ChangesDetected: currentHash != ref.RFCHash,
	})
	ref.RFCHash = currentHash
	ref.LastSync = now

	if err := writeJSON(filepath.Join(dir, planFile), updated); err != nil {
		return nil, false, err
	}
	if err := writeJSON(filepath.Join(dir, referenceFile), ref); err != nil {
		return nil, false, err
	}

	s.logger.Info(ctx, "plan regenerated", "plan", planName, "rfc_id", ref.RFCID)
	return updated, true, nil
}

// Move transitions a plan directory between status folders.
func (s *Store) Move(ctx context.Context, planName string, to models.PlanStatus) error {
	if to != models.RFCInProgress && to != models.RFCArchived {
		return models.NewToolError(models.ErrInvalidArguments, "unknown plan status %q", to)
	}

	release := s.locker.Lock("plan:" + planName)
	defer release()

	dir, status, err := s.findOrErr(planName)
	if err != nil {
		return err
	}
	if status == to {
		return nil
	}

	target := filepath.Join(s.paths.PlanDir(to), planName)
	if err := os.Rename(dir, target); err != nil {
		return models.NewToolError(models.ErrPermissionDenied, "move plan: %v", err)
	}
	s.logger.Info(ctx, "plan moved", "plan", planName, "to", string(to))
	return nil
}

// Delete removes the plan directory and clears it from the source RFC's
// sidecar.
func (s *Store) Delete(ctx context.Context, planName string) error {
	release := s.locker.Lock("plan:" + planName)
	defer release()

	dir, _, err := s.findOrErr(planName)
	if err != nil {
		return err
	}

	var ref models.RFCReference
	rfcID := ""
	if err := readJSON(filepath.Join(dir, referenceFile), &ref); err == nil {
		rfcID = ref.RFCID
	}

	if err := os.RemoveAll(dir); err != nil {
		return models.NewToolError(models.ErrPermissionDenied, "delete plan: %v", err)
	}
	if rfcID != "" {
		if err := s.rfcs.RemoveDerivedPlan(rfcID, planName); err != nil {
			return err
		}
	}
	s.logger.Info(ctx, "plan deleted", "plan", planName)
	return nil
}

// List returns plan names in a status folder.
func (s *Store) List(status models.PlanStatus) ([]string, error) {
	if status != models.RFCInProgress && status != models.RFCArchived {
		return nil, models.NewToolError(models.ErrInvalidArguments, "unknown plan status %q", status)
	}
	entries, err := os.ReadDir(s.paths.PlanDir(status))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, models.NewToolError(models.ErrPermissionDenied, "read plan dir: %v", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// CheckDriftFor re-checks every plan referencing the given RFC markdown
// file. The RFC watcher calls this on external edits.
func (s *Store) CheckDriftFor(mdPath string) {
	base := filepath.Base(mdPath)
	for _, status := range []models.PlanStatus{models.RFCInProgress, models.RFCArchived} {
		names, err := s.List(status)
		if err != nil {
			continue
		}
		for _, name := range names {
			var ref models.RFCReference
			refPath := filepath.Join(s.paths.PlanDir(status), name, referenceFile)
			if err := readJSON(refPath, &ref); err != nil {
				continue
			}
			if filepath.Base(ref.RFCPath) != base {
				continue
			}
			doc, err := s.Read(name)
			if err == nil && doc.Drift {
				s.logger.Warn(context.Background(), "plan drifted from its rfc",
					"plan", name, "rfc_id", ref.RFCID)
			}
		}
	}
}

func (s *Store) find(planName string) (string, models.PlanStatus, error) {
	for _, status := range []models.PlanStatus{models.RFCInProgress, models.RFCArchived} {
		dir := filepath.Join(s.paths.PlanDir(status), planName)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, status, nil
		}
	}
	return "", "", nil
}

func (s *Store) findOrErr(planName string) (string, models.PlanStatus, error) {
	dir, status, _ := s.find(planName)
	if dir == "" {
		return "", "", models.NewToolError(models.ErrFileNotFound, "plan %q not found", planName).
			WithSuggestions("use list_plans to see available plans")
	}
	return dir, status, nil
}

// carryTaskStatus copies task status from the prior plan onto regenerated
// tasks with the same name.
func carryTaskStatus(prior, updated *models.Plan) {
	byName := make(map[string]models.TaskStatus, len(prior.Tasks))
	for _, t := range prior.Tasks {
		if t.Status != "" {
			byName[t.Name] = t.Status
		}
	}
	for i := range updated.Tasks {
		if st, ok := byName[updated.Tasks[i].Name]; ok {
			updated.Tasks[i].Status = st
		}
	}
}

func planNameFor(shortName string, now time.Time) string {
	if shortName == "" {
		shortName = "plan"
	}
	return fmt.Sprintf("%s-plan-%s", shortName, now.Format("2006-01-02"))
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return models.NewToolError(models.ErrJSONSerialization, "encode %s: %v", filepath.Base(path), err)
	}
	if err := workspace.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return models.NewToolError(models.ErrPermissionDenied, "write %s: %v", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.NewToolError(models.ErrFileNotFound, "%s not found", filepath.Base(path)).WithFile(path)
		}
		return models.NewToolError(models.ErrPermissionDenied, "read %s: %v", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return models.NewToolError(models.ErrSyntax, "decode %s: %v", filepath.Base(path), err).WithFile(path)
	}
	return nil
}
