// Package provision verifies that the pinned language runtime is available
// before a branch starts building. Provisioning failure is fatal to that
// branch only.
package provision

import (
	"context"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/relforge/internal/config"
	rferrors "git.home.luguber.info/inful/relforge/internal/errors"
	"git.home.luguber.info/inful/relforge/internal/logfields"
)

var versionPattern = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)

// Provisioner locates and version-checks the configured runtime.
type Provisioner struct {
	cfg config.RuntimeConfig
}

// New creates a provisioner for the given runtime pin.
func New(cfg config.RuntimeConfig) *Provisioner {
	return &Provisioner{cfg: cfg}
}

// Runtime describes a provisioned runtime.
type Runtime struct {
	Tool    string // Resolved binary path
	Version string // Detected version string
}

// Ensure resolves the runtime binary and verifies its version against the
// pin. An empty pinned version only requires the tool to exist.
func (p *Provisioner) Ensure(ctx context.Context) (*Runtime, error) {
	path, err := exec.LookPath(p.cfg.Tool)
	if err != nil {
		return nil, rferrors.ProvisioningError("runtime not found on PATH").
			WithCause(err).
			WithContext("tool", p.cfg.Tool).
			Build()
	}

	version, err := detectVersion(ctx, path)
	if err != nil {
		return nil, rferrors.ProvisioningError("runtime version detection failed").
			WithCause(err).
			WithContext("tool", p.cfg.Tool).
			Build()
	}

	if !pinSatisfied(version, p.cfg.Version) {
		return nil, rferrors.ProvisioningError("runtime version does not match pin").
			WithContext("tool", p.cfg.Tool).
			WithContext("pinned", p.cfg.Version).
			WithContext("detected", version).
			Build()
	}

	slog.Debug("Runtime provisioned",
		logfields.Name(p.cfg.Tool),
		slog.String("version", version),
		logfields.Path(path))

	return &Runtime{Tool: path, Version: version}, nil
}

// pinSatisfied matches the pin on release-component boundaries: a pin of
// "3.11" accepts "3.11" and "3.11.9" but not "3.1" accepting "3.11.9".
func pinSatisfied(version, pin string) bool {
	if pin == "" {
		return true
	}
	return version == pin || strings.HasPrefix(version, pin+".")
}

// detectVersion runs `<tool> --version` and extracts the numeric version.
func detectVersion(ctx context.Context, toolPath string) (string, error) {
	// #nosec G204 -- toolPath is from exec.LookPath, not user-controlled
	cmd := exec.CommandContext(ctx, toolPath, "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", err
	}
	return parseVersion(string(output)), nil
}

// parseVersion extracts the first X.Y or X.Y.Z from version output.
// Returns the trimmed raw output when no numeric version is present.
func parseVersion(output string) string {
	if m := versionPattern.FindStringSubmatch(output); len(m) >= 2 {
		return m[1]
	}
	return strings.TrimSpace(output)
}
