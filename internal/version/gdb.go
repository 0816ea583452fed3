package version

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/golang/glog"
)

// Disassembly modes of -data-disassemble with source lines. gdb 7.7
// and older only know the deprecated mode 3.
const (
	DisassemblyModeLegacy = 3
	DisassemblyModeSource = 4
)

// ProbeTimeout bounds "gdb --version".
const ProbeTimeout = 5 * time.Second

// gdb prints e.g. "GNU gdb (Ubuntu 12.1-0ubuntu1~22.04) 12.1" or
// "GNU gdb (GDB) 7.6.1-ubuntu"; the last dotted number on the first line
// is the version.
var gdbVersionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseGDB extracts the version from the first line of gdb --version
// output, or from a bare version such as "12.1".
func ParseGDB(output string) (*semver.Version, error) {
	line := oneLine(output)
	matches := gdbVersionPattern.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no gdb version in %q", line)
	}
	m := matches[len(matches)-1]
	patch := m[3]
	if patch == "" {
		patch = "0"
	}
	return semver.NewVersion(fmt.Sprintf("%s.%s.%s", m[1], m[2], patch))
}

// DisassemblyMode picks the -data-disassemble mode for v. An unknown
// version gets the current mode.
func DisassemblyMode(v *semver.Version) int {
	if v == nil {
		return DisassemblyModeSource
	}
	if v.Major() < 7 || (v.Major() == 7 && v.Minor() <= 7) {
		return DisassemblyModeLegacy
	}
	return DisassemblyModeSource
}

// ProbeGDB runs "path --version" and parses the result.
func ProbeGDB(ctx context.Context, path string) (*semver.Version, string, error) {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return nil, "", fmt.Errorf("failed to run %s --version: %w", path, err)
	}
	v, err := ParseGDB(string(out))
	if err != nil {
		return nil, "", err
	}
	return v, oneLine(string(out)), nil
}

// ResolveGDB returns the configured version when set, and otherwise
// probes path. Failures are logged and yield nil.
func ResolveGDB(ctx context.Context, configured, path string) (*semver.Version, string) {
	if configured != "" {
		v, err := ParseGDB(configured)
		if err != nil {
			glog.Warningf("[version]ignoring configured gdb version: %v", err)
			return nil, configured
		}
		return v, configured
	}
	if path == "" {
		return nil, ""
	}
	v, line, err := ProbeGDB(ctx, path)
	if err != nil {
		glog.V(1).Infof("[version]%v", err)
		return nil, ""
	}
	return v, line
}
