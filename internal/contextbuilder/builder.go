// Package contextbuilder assembles the system prompt from workspace
// identity files, the registered-tool section, the skills block, safety
// guardrails, and runtime metadata.
package contextbuilder

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jamesmstone/ghostclaw-sub000/internal/tools"
)

const maxIdentityFileBytes = 20 * 1024 // ~20 KiB
const truncatedMarker = "\n[truncated]\n"

var identityFiles = []string{"SOUL.md", "IDENTITY.md", "AGENTS.md", "USER.md", "TOOLS.md"}

const bootstrapMarker = ".ghostclaw_bootstrap_seen"
const bootstrapFile = "BOOTSTRAP.md"

const safetyGuardrails = `Follow the workspace's tool policy at all times. Never exfiltrate secrets or bypass containment checks. Refuse actions outside the current autonomy level.`

// Builder assembles the system prompt for a workspace.
type Builder struct {
	WorkspaceDir string
	Version      string
	Registry     *tools.Registry
	Skills       []string
}

func New(workspaceDir, version string, registry *tools.Registry, skills []string) *Builder {
	return &Builder{WorkspaceDir: workspaceDir, Version: version, Registry: registry, Skills: skills}
}

func (b *Builder) readIdentityFile(name string) string {
	path := filepath.Join(b.WorkspaceDir, name)
	buf, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if len(buf) > maxIdentityFileBytes {
		return string(buf[:maxIdentityFileBytes]) + truncatedMarker
	}
	return string(buf)
}

// bootstrapSeen reports whether BOOTSTRAP.md has already been appended
// once, per the one-shot marker file.
func (b *Builder) bootstrapSeen() bool {
	_, err := os.Stat(filepath.Join(b.WorkspaceDir, bootstrapMarker))
	return err == nil
}

func (b *Builder) markBootstrapSeen() {
	path := filepath.Join(b.WorkspaceDir, bootstrapMarker)
	_ = os.WriteFile(path, []byte(time.Now().UTC().Format(time.RFC3339)), 0600)
}

// Build assembles and returns the full system prompt.
func (b *Builder) Build() string {
	var sb strings.Builder

	for _, f := range identityFiles {
		if content := b.readIdentityFile(f); content != "" {
			sb.WriteString(content)
			sb.WriteString("\n\n")
		}
	}

	if !b.bootstrapSeen() {
		if content := b.readIdentityFile(bootstrapFile); content != "" {
			sb.WriteString(content)
			sb.WriteString("\n\n")
			b.markBootstrapSeen()
		}
	}

	sb.WriteString("## Tools\n")
	if b.Registry != nil {
		for _, spec := range b.Registry.Specs() {
			sb.WriteString(fmt.Sprintf("- %s: %s (%s)\n", spec.Name, spec.Description, strings.Join(spec.Parameters, ", ")))
		}
	}
	sb.WriteString("\n")

	if len(b.Skills) > 0 {
		sb.WriteString("<skills>\n")
		for _, s := range b.Skills {
			sb.WriteString("- " + s + "\n")
		}
		sb.WriteString("</skills>\n\n")
	}

	sb.WriteString(safetyGuardrails)
	sb.WriteString("\n\n")

	hostname, _ := os.Hostname()
	sb.WriteString(fmt.Sprintf("hostname: %s\nlocaltime: %s\nversion: %s\nruntime: %s/%s\n",
		hostname, time.Now().Format(time.RFC3339), b.Version, runtime.GOOS, runtime.GOARCH))

	return sb.String()
}
