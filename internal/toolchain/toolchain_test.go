package toolchain

import (
	"os/exec"
	"strings"
	"testing"

	"github.com/compiledb/compiledb/pkg/config"
)

func TestCheckMissingCompilerReportsMissing(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Compiler.CC = "no-such-compiler-binary-xyz"

	result := Check(cfg)
	if result.Toolchain.Status != StatusMissing {
		t.Fatalf("Status = %v, want %v", result.Toolchain.Status, StatusMissing)
	}
	if !result.HasAnyMissing() {
		t.Error("expected HasAnyMissing to be true")
	}
	if result.Available() {
		t.Error("expected Available to be false")
	}
}

func TestCheckAvailableCompilerReportsVersion(t *testing.T) {
	cc := findAnyCC(t)

	cfg := config.DefaultConfig()
	cfg.Compiler.CC = cc

	result := Check(cfg)
	if result.Toolchain.Status != StatusAvailable {
		t.Fatalf("Status = %v, want %v (message: %s)", result.Toolchain.Status, StatusAvailable, result.Toolchain.Message)
	}
	if result.Toolchain.Path == "" {
		t.Error("expected a resolved path")
	}
	if !result.Available() {
		t.Error("expected Available to be true")
	}
	if result.HasAnyMissing() {
		t.Error("expected HasAnyMissing to be false")
	}
}

func TestFormatWarningEmptyWhenAvailable(t *testing.T) {
	result := &CheckResult{Toolchain: Info{CC: "cc", Status: StatusAvailable}}
	if w := FormatWarning(result); w != "" {
		t.Errorf("expected no warning, got %q", w)
	}
}

func TestFormatWarningNonEmptyWhenMissing(t *testing.T) {
	result := &CheckResult{Toolchain: Info{CC: "cc", Status: StatusMissing}}
	w := FormatWarning(result)
	if !strings.Contains(w, "cc") {
		t.Errorf("expected warning to mention the compiler name, got %q", w)
	}
}

func TestFormatDoctorReportIncludesInstallInstructionsWhenMissing(t *testing.T) {
	result := &CheckResult{Toolchain: Info{CC: "cc", Status: StatusMissing, Message: "cc is not installed or not on PATH"}}
	report := FormatDoctorReport(result)
	if !strings.Contains(report, "NOT AVAILABLE") {
		t.Errorf("expected report to flag unavailability, got %q", report)
	}
	if !strings.Contains(report, "cc is not installed") {
		t.Errorf("expected report to include the underlying message, got %q", report)
	}
}

// findAnyCC returns a compiler binary known to be on PATH in the
// current environment, skipping the test if none is reachable. Unlike
// testutil.RequireCC this does not assume the CC env var names one.
func findAnyCC(t *testing.T) string {
	t.Helper()
	for _, candidate := range []string{"cc", "gcc", "clang"} {
		if _, err := exec.LookPath(candidate); err == nil {
			return candidate
		}
	}
	t.Skip("no native C compiler reachable on PATH")
	return ""
}
