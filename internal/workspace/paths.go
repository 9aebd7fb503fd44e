package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// WhisperDir is the workspace metadata directory created under the project
// root. All RFC, plan, log, and state artifacts live beneath it.
const WhisperDir = ".WHISPER"

// Paths resolves every well-known location in a workspace. Build one at
// startup and thread it explicitly to consumers; there is no process-wide
// singleton.
type Paths struct {
	root string
}

// New creates a Paths anchored at the given project root.
func New(root string) (*Paths, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	return &Paths{root: abs}, nil
}

// Root returns the absolute project root.
func (p *Paths) Root() string { return p.root }

// Whisper returns the .WHISPER directory.
func (p *Paths) Whisper() string { return filepath.Join(p.root, WhisperDir) }

// RFCDir returns the RFC folder for a status.
func (p *Paths) RFCDir(status models.RFCStatus) string {
	return filepath.Join(p.Whisper(), "rfc", string(status))
}

// PlanDir returns the plans folder for a status.
func (p *Paths) PlanDir(status models.RFCStatus) string {
	return filepath.Join(p.Whisper(), "plans", string(status))
}

// Logs returns the log directory.
func (p *Paths) Logs() string { return filepath.Join(p.Whisper(), "logs") }

// State returns the state directory.
func (p *Paths) State() string { return filepath.Join(p.Whisper(), "state") }

// Output returns the output directory.
func (p *Paths) Output() string { return filepath.Join(p.Whisper(), "output") }

// Health returns the health-check script directory.
func (p *Paths) Health() string { return filepath.Join(p.Whisper(), "health") }

// All lists every directory Bootstrap creates, in creation order.
func (p *Paths) All() []string {
	return []string{
		p.Whisper(),
		p.RFCDir(models.RFCInProgress),
		p.RFCDir(models.RFCArchived),
		p.PlanDir(models.RFCInProgress),
		p.PlanDir(models.RFCArchived),
		p.Logs(),
		p.State(),
		p.Output(),
		p.Health(),
	}
}

// Bootstrap creates the .WHISPER tree. Existing directories are left alone.
func (p *Paths) Bootstrap() error {
	for _, dir := range p.All() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
