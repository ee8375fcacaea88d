// Package toolchain provides centralized checking and messaging for the
// native C toolchain that compiler, page, index, and kernel all shell
// out to. Every compiled artifact in this engine depends on it, so a
// missing toolchain is reported up front rather than surfacing as a
// cryptic compile failure on the first CreateTable.
package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/compiledb/compiledb/pkg/config"
)

// Status represents the status of the native toolchain.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusMissing     Status = "missing"
)

// Info describes the toolchain's availability and identity.
type Info struct {
	CC      string
	Status  Status
	Version string
	Path    string
	Message string
}

// CheckResult contains the results of checking the toolchain.
type CheckResult struct {
	Toolchain Info
}

// Check probes cfg.Compiler.CC for reachability and reports its version.
func Check(cfg *config.Config) *CheckResult {
	return &CheckResult{Toolchain: checkCC(cfg.Compiler.CC)}
}

func checkCC(cc string) Info {
	info := Info{CC: cc}

	path, err := exec.LookPath(cc)
	if err != nil {
		info.Status = StatusMissing
		info.Message = fmt.Sprintf("%s is not installed or not on PATH", cc)
		return info
	}
	info.Path = path

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, cc, "--version")
	out, err := cmd.Output()
	if err != nil {
		info.Status = StatusUnavailable
		info.Message = fmt.Sprintf("%s was found but could not report its version", cc)
		return info
	}

	info.Status = StatusAvailable
	info.Version = firstVersionLine(out)
	info.Message = fmt.Sprintf("%s is available", cc)
	return info
}

// firstVersionLine extracts a short identifying token from `cc
// --version` output, which varies wildly between gcc, clang, and
// vendor-specific compilers.
func firstVersionLine(out []byte) string {
	line := strings.SplitN(string(out), "\n", 2)[0]
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	return line
}

// HasAnyMissing returns true if the toolchain is missing outright.
func (r *CheckResult) HasAnyMissing() bool {
	return r.Toolchain.Status == StatusMissing
}

// Available returns true if the compiler was found on PATH and answered
// --version; it does not try a compile or link.
func (r *CheckResult) Available() bool {
	return r.Toolchain.Status == StatusAvailable
}

// FormatWarning formats a brief warning message for display before a
// command that will need to invoke the toolchain.
func FormatWarning(result *CheckResult) string {
	var buf bytes.Buffer

	if result.Toolchain.Status == StatusMissing || result.Toolchain.Status == StatusUnavailable {
		fmt.Fprintf(&buf, "WARNING: native toolchain %q is not available - no table, page, index, or kernel operations will work\n", result.Toolchain.CC)
		buf.WriteString("   Run 'compiledb doctor' for details.\n")
	}

	return buf.String()
}

// FormatDoctorReport formats a detailed doctor report.
func FormatDoctorReport(result *CheckResult) string {
	var buf bytes.Buffer

	buf.WriteString("Toolchain... ")
	switch result.Toolchain.Status {
	case StatusAvailable:
		buf.WriteString("OK\n")
		fmt.Fprintf(&buf, "  Compiler: %s\n", result.Toolchain.CC)
		fmt.Fprintf(&buf, "  Path: %s\n", result.Toolchain.Path)
		if result.Toolchain.Version != "" {
			fmt.Fprintf(&buf, "  Version: %s\n", result.Toolchain.Version)
		}
	case StatusUnavailable:
		buf.WriteString("NOT AVAILABLE\n")
		fmt.Fprintf(&buf, "  %s\n", result.Toolchain.Message)
	case StatusMissing:
		buf.WriteString("NOT AVAILABLE\n")
		fmt.Fprintf(&buf, "  %s\n", result.Toolchain.Message)
		buf.WriteString("\n")
		buf.WriteString(installInstructions())
	}

	return buf.String()
}

func installInstructions() string {
	switch runtime.GOOS {
	case "darwin":
		return "Install a toolchain:\n" +
			"   xcode-select --install\n" +
			"   OR: brew install gcc\n"
	case "linux":
		return "Install a toolchain:\n" +
			"   apt-get install build-essential\n" +
			"   OR: yum groupinstall \"Development Tools\"\n"
	default:
		return "Install a C compiler (gcc or clang) and ensure it is on PATH.\n"
	}
}
