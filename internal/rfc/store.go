// Package rfc implements the RFC document store: creation with
// date-scoped ids, status moves, sidecar metadata, and deletion.
package rfc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/internal/workspace"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// statusLineRe matches the Status field of the RFC markdown header.
var statusLineRe = regexp.MustCompile(`(?m)^\*\*Status\*\*:.*$`)

// lastUpdatedRe matches the Last Updated field of the RFC markdown header.
var lastUpdatedRe = regexp.MustCompile(`(?m)^\*\*Last Updated\*\*:.*$`)

// shortNameRe keeps filenames filesystem-safe.
var shortNameRe = regexp.MustCompile(`[^a-z0-9]+`)

// Store manages RFC documents under .WHISPER/rfc/{in_progress,archived}.
// Every document is a markdown file plus a JSON sidecar with the same
// basename; both always move together.
type Store struct {
	paths  *workspace.Paths
	locker *workspace.DocLocker
	logger *observability.Logger

	// now is replaced in tests to pin id generation to a date.
	now func() time.Time
}

// NewStore creates a store over the workspace.
func NewStore(paths *workspace.Paths, locker *workspace.DocLocker, logger *observability.Logger) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if locker == nil {
		locker = workspace.NewDocLocker()
	}
	return &Store{paths: paths, locker: locker, logger: logger, now: time.Now}
}

// Document pairs an RFC's metadata with its markdown content.
type Document struct {
	Meta    models.RFCMetadata
	Content string
}

// Create writes a new RFC in in_progress with a generated id and returns
// its metadata. shortName is slugified for the filename; title lands in the
// markdown header.
func (s *Store) Create(ctx context.Context, title, shortName, author string) (*models.RFCMetadata, error) {
	release := s.locker.Lock("rfc-create")
	defer release()

	now := s.now()
	id, err := s.nextID(now)
	if err != nil {
		return nil, err
	}

	slug := slugify(shortName)
	if slug == "" {
		slug = "rfc"
	}
	filename, err := s.freeFilename(slug, now)
	if err != nil {
		return nil, err
	}

	meta := models.RFCMetadata{
		RFCID:         id,
		Filename:      filename,
		ShortName:     slug,
		Title:         title,
		Status:        models.RFCInProgress,
		Created:       now.Format(time.RFC3339),
		Updated:       now.Format(time.RFC3339),
		Author:        author,
		StatusHistory: []models.StatusChange{},
		DerivedPlans:  []string{},
	}

	content := renderTemplate(meta)
	dir := s.paths.RFCDir(models.RFCInProgress)
	if err := workspace.WriteFileAtomic(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		return nil, models.NewToolError(models.ErrPermissionDenied, "write rfc: %v", err)
	}
	if err := s.writeSidecar(filepath.Join(dir, filename), &meta); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "rfc created", "rfc_id", id, "filename", filename)
	return &meta, nil
}

// Read returns the document for an RFC id, searching both status folders.
func (s *Store) Read(id string) (*Document, error) {
	mdPath, meta, err := s.find(id)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(mdPath)
	if err != nil {
		return nil, models.NewToolError(models.ErrPermissionDenied, "read rfc: %v", err).WithFile(mdPath)
	}
	return &Document{Meta: *meta, Content: string(content)}, nil
}

// UpdateContent replaces the RFC's markdown and bumps the Updated stamp.
func (s *Store) UpdateContent(ctx context.Context, id, content string) (*models.RFCMetadata, error) {
	release := s.locker.Lock(id)
	defer release()

	mdPath, meta, err := s.find(id)
	if err != nil {
		return nil, err
	}
	meta.Updated = s.now().Format(time.RFC3339)
	content = stampLastUpdated(content, meta.Updated)
	if err := workspace.WriteFileAtomic(mdPath, []byte(content), 0o644); err != nil {
		return nil, models.NewToolError(models.ErrPermissionDenied, "write rfc: %v", err).WithFile(mdPath)
	}
	if err := s.writeSidecar(mdPath, meta); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "rfc updated", "rfc_id", id)
	return meta, nil
}

// Move transitions an RFC between status folders. The markdown Status
// field is rewritten, a history entry appended, and both files renamed into
// the target folder. Moving to the current status is a no-op.
func (s *Store) Move(ctx context.Context, id string, to models.RFCStatus, reason string) (*models.RFCMetadata, error) {
	if to != models.RFCInProgress && to != models.RFCArchived {
		return nil, models.NewToolError(models.ErrInvalidArguments, "unknown rfc status %q", to)
	}

	release := s.locker.Lock(id)
	defer release()

	mdPath, meta, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if meta.Status == to {
		return meta, nil
	}

	content, err := os.ReadFile(mdPath)
	if err != nil {
		return nil, models.NewToolError(models.ErrPermissionDenied, "read rfc: %v", err).WithFile(mdPath)
	}
	now := s.now()
	updated := statusLineRe.ReplaceAllString(string(content), "**Status**: "+string(to))
	updated = stampLastUpdated(updated, now.Format(time.RFC3339))

	meta.StatusHistory = append(meta.StatusHistory, models.StatusChange{
		From:      meta.Status,
		To:        to,
		Timestamp: now.Format(time.RFC3339),
		Reason:    reason,
	})
	from := meta.Status
	meta.Status = to
	meta.Updated = now.Format(time.RFC3339)

	// Write the updated markdown in place first, then rename both files;
	// rename within the same filesystem is atomic, so a crash leaves the
	// document whole in exactly one folder.
	if err := workspace.WriteFileAtomic(mdPath, []byte(updated), 0o644); err != nil {
		return nil, models.NewToolError(models.ErrPermissionDenied, "write rfc: %v", err).WithFile(mdPath)
	}
	if err := s.writeSidecar(mdPath, meta); err != nil {
		return nil, err
	}

	targetMD := filepath.Join(s.paths.RFCDir(to), meta.Filename)
	if err := os.Rename(mdPath, targetMD); err != nil {
		return nil, models.NewToolError(models.ErrPermissionDenied, "move rfc: %v", err).WithFile(mdPath)
	}
	if err := os.Rename(sidecarPath(mdPath), sidecarPath(targetMD)); err != nil {
		// Roll the markdown back so the pair stays together.
		os.Rename(targetMD, mdPath)
		return nil, models.NewToolError(models.ErrPermissionDenied, "move rfc sidecar: %v", err)
	}

	s.logger.Info(ctx, "rfc moved", "rfc_id", id, "from", string(from), "to", string(to))
	return meta, nil
}

// Delete removes an RFC and its sidecar. RFCs with derived plans are
// protected unless force is set; the plan store clears its own reference
// when a plan is deleted first.
func (s *Store) Delete(ctx context.Context, id string, force bool) error {
	release := s.locker.Lock(id)
	defer release()

	mdPath, meta, err := s.find(id)
	if err != nil {
		return err
	}
	if len(meta.DerivedPlans) > 0 && !force {
		return models.NewToolError(models.ErrConflictingOptions,
			"rfc %s has derived plans %v; delete them first or pass force", id, meta.DerivedPlans).
			WithSuggestions("delete the derived plans, or call again with force=true")
	}
	if err := os.Remove(mdPath); err != nil {
		return models.NewToolError(models.ErrPermissionDenied, "delete rfc: %v", err).WithFile(mdPath)
	}
	if err := os.Remove(sidecarPath(mdPath)); err != nil && !os.IsNotExist(err) {
		return models.NewToolError(models.ErrPermissionDenied, "delete rfc sidecar: %v", err)
	}
	s.logger.Info(ctx, "rfc deleted", "rfc_id", id)
	return nil
}

// List returns metadata for every RFC in a status folder, sorted by id via
// directory order of the sidecars.
func (s *Store) List(status models.RFCStatus) ([]models.RFCMetadata, error) {
	if status != models.RFCInProgress && status != models.RFCArchived {
		return nil, models.NewToolError(models.ErrInvalidArguments, "unknown rfc status %q", status)
	}
	return s.readSidecars(s.paths.RFCDir(status))
}

// AddDerivedPlan records a plan name on the RFC sidecar.
func (s *Store) AddDerivedPlan(id, planName string) error {
	release := s.locker.Lock(id)
	defer release()

	mdPath, meta, err := s.find(id)
	if err != nil {
		return err
	}
	for _, p := range meta.DerivedPlans {
		if p == planName {
			return nil
		}
	}
	meta.DerivedPlans = append(meta.DerivedPlans, planName)
	meta.Updated = s.now().Format(time.RFC3339)
	return s.writeSidecar(mdPath, meta)
}

// RemoveDerivedPlan clears a plan name from the RFC sidecar. A missing RFC
// is not an error here; the plan may outlive its source.
func (s *Store) RemoveDerivedPlan(id, planName string) error {
	release := s.locker.Lock(id)
	defer release()

	mdPath, meta, err := s.find(id)
	if err != nil {
		return nil
	}
	kept := meta.DerivedPlans[:0]
	for _, p := range meta.DerivedPlans {
		if p != planName {
			kept = append(kept, p)
		}
	}
	meta.DerivedPlans = kept
	meta.Updated = s.now().Format(time.RFC3339)
	return s.writeSidecar(mdPath, meta)
}

// find locates an RFC by id across both status folders.
func (s *Store) find(id string) (string, *models.RFCMetadata, error) {
	for _, status := range []models.RFCStatus{models.RFCInProgress, models.RFCArchived} {
		dir := s.paths.RFCDir(status)
		metas, err := s.readSidecars(dir)
		if err != nil {
			return "", nil, err
		}
		for i := range metas {
			if metas[i].RFCID == id {
				return filepath.Join(dir, metas[i].Filename), &metas[i], nil
			}
		}
	}
	return "", nil, models.NewToolError(models.ErrFileNotFound, "rfc %q not found", id).
		WithSuggestions("use list_rfcs to see available ids")
}

func (s *Store) readSidecars(dir string) ([]models.RFCMetadata, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, models.NewToolError(models.ErrPermissionDenied, "read rfc dir: %v", err)
	}

	var metas []models.RFCMetadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var meta models.RFCMetadata
		if err := json.Unmarshal(data, &meta); err != nil || meta.RFCID == "" {
			continue
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// nextID picks the smallest free NNNN for today across both status
// folders.
func (s *Store) nextID(now time.Time) (string, error) {
	date := now.Format("2006-01-02")
	used := make(map[string]bool)
	for _, status := range []models.RFCStatus{models.RFCInProgress, models.RFCArchived} {
		metas, err := s.readSidecars(s.paths.RFCDir(status))
		if err != nil {
			return "", err
		}
		for _, meta := range metas {
			used[meta.RFCID] = true
		}
	}
	for n := 1; n <= 9999; n++ {
		id := fmt.Sprintf("RFC-%s-%04d", date, n)
		if !used[id] {
			return id, nil
		}
	}
	return "", models.NewToolError(models.ErrMemoryExhaustion, "rfc ids exhausted for %s", date)
}

// freeFilename derives the markdown filename from the slug and date,
// adding a numeric disambiguator when taken.
func (s *Store) freeFilename(slug string, now time.Time) (string, error) {
	date := now.Format("2006-01-02")
	for n := 0; n <= 999; n++ {
		name := fmt.Sprintf("%s-%s.md", slug, date)
		if n > 0 {
			name = fmt.Sprintf("%s-%s-%d.md", slug, date, n+1)
		}
		free := true
		for _, status := range []models.RFCStatus{models.RFCInProgress, models.RFCArchived} {
			if _, err := os.Stat(filepath.Join(s.paths.RFCDir(status), name)); err == nil {
				free = false
				break
			}
		}
		if free {
			return name, nil
		}
	}
	return "", models.NewToolError(models.ErrMemoryExhaustion, "cannot find a free filename for %q", slug)
}

func (s *Store) writeSidecar(mdPath string, meta *models.RFCMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return models.NewToolError(models.ErrJSONSerialization, "encode rfc sidecar: %v", err)
	}
	if err := workspace.WriteFileAtomic(sidecarPath(mdPath), append(data, '\n'), 0o644); err != nil {
		return models.NewToolError(models.ErrPermissionDenied, "write rfc sidecar: %v", err)
	}
	return nil
}

func sidecarPath(mdPath string) string {
	return strings.TrimSuffix(mdPath, filepath.Ext(mdPath)) + ".json"
}

func slugify(s string) string {
	slug := shortNameRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	return strings.Trim(slug, "-")
}

// stampLastUpdated rewrites the markdown's Last Updated field. Content
// without the field is returned unchanged.
func stampLastUpdated(content, ts string) string {
	return lastUpdatedRe.ReplaceAllString(content, "**Last Updated**: "+ts)
}

func renderTemplate(meta models.RFCMetadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# RFC: %s\n\n", meta.Title)
	fmt.Fprintf(&b, "**RFC ID**: %s\n", meta.RFCID)
	fmt.Fprintf(&b, "**Status**: %s\n", meta.Status)
	fmt.Fprintf(&b, "**Created**: %s\n", meta.Created)
	fmt.Fprintf(&b, "**Last Updated**: %s\n", meta.Updated)
	fmt.Fprintf(&b, "**Author**: %s\n\n", meta.Author)
	b.WriteString("## Summary\n\n*Brief description of the feature or change*\n\n")
	b.WriteString("## Background\n\n*Context and motivation*\n\n")
	b.WriteString("## Requirements\n\n- [ ] *Requirement 1*\n\n")
	b.WriteString("## Technical Considerations\n\n*Implementation details, dependencies, constraints*\n\n")
	b.WriteString("## Implementation Approach\n\n*High-level approach once requirements are clear*\n\n")
	b.WriteString("## Open Questions\n\n- [ ] *Question 1*\n\n")
	b.WriteString("## Acceptance Criteria\n\n- [ ] *Criterion 1*\n\n")
	b.WriteString("## Related RFCs\n\n*Links to related documents*\n\n")
	b.WriteString("## Refinement History\n\n*Notable changes to this RFC*\n")
	return b.String()
}
