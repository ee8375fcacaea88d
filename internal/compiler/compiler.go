// Package compiler implements the artifact compiler (C3): it writes a
// small shell script per build and invokes a native toolchain to turn
// a generated C source file into a shared object, caching on disk by
// mtime comparison.
package compiler

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/compiledb/compiledb/internal/dberr"
	"github.com/compiledb/compiledb/internal/logging"
)

var log = logging.GetLogger("compiler")

// Compiler builds shared objects from generated C source.
type Compiler struct {
	CC         string   // compiler executable, e.g. "gcc" or "cc"
	Flags      []string // extra flags appended after -fPIC -shared -O2 -g
	ScriptsDir string   // directory scripts are emitted into
}

// New returns a Compiler using cc as the toolchain executable.
func New(cc string, flags []string, scriptsDir string) *Compiler {
	return &Compiler{CC: cc, Flags: flags, ScriptsDir: scriptsDir}
}

// Compile builds sourcePath into outputPath, consulting includeDirs for
// header lookup. It is idempotent: if outputPath already exists and is
// newer than sourcePath, it returns success without invoking the
// toolchain.
func (c *Compiler) Compile(sourcePath, outputPath string, includeDirs []string) error {
	const op = "compiler.Compile"

	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		return dberr.Wrap(dberr.IOError, op, err, "source file %s not found", sourcePath)
	}

	if outInfo, err := os.Stat(outputPath); err == nil {
		if outInfo.ModTime().After(srcInfo.ModTime()) {
			log.Debug("artifact up to date, skipping compile", "source", sourcePath, "output", outputPath)
			return nil
		}
	}

	script, err := c.writeScript(sourcePath, outputPath, includeDirs)
	if err != nil {
		return err
	}

	cmd := exec.Command("/bin/sh", script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		log.Error("compile failed", "source", sourcePath, "error", err, "output", string(out))
		return dberr.Wrap(dberr.CompileError, op, err, "%s failed on %s: %s", c.CC, sourcePath, string(out))
	}

	if _, err := os.Stat(outputPath); err != nil {
		return dberr.Wrap(dberr.CompileError, op, err, "toolchain reported success but %s was not produced", outputPath)
	}

	log.Info("compiled artifact", "source", sourcePath, "output", outputPath)
	return nil
}

// writeScript emits the build script to ScriptsDir and returns its path.
func (c *Compiler) writeScript(sourcePath, outputPath string, includeDirs []string) (string, error) {
	const op = "compiler.writeScript"

	if err := os.MkdirAll(c.ScriptsDir, 0755); err != nil {
		return "", dberr.Wrap(dberr.IOError, op, err, "create scripts dir %s", c.ScriptsDir)
	}

	args := []string{c.CC, "-fPIC", "-shared", "-O2", "-g"}
	for _, dir := range includeDirs {
		args = append(args, "-I"+dir)
	}
	args = append(args, c.Flags...)
	args = append(args, "-o", outputPath, sourcePath)

	script := "#!/bin/sh\nset -e\n" + shellJoin(args) + "\n"

	scriptPath := filepath.Join(c.ScriptsDir, scriptName(outputPath))
	if err := os.WriteFile(scriptPath, []byte(script), 0755); err != nil {
		return "", dberr.Wrap(dberr.IOError, op, err, "write build script %s", scriptPath)
	}
	return scriptPath, nil
}

func scriptName(outputPath string) string {
	base := filepath.Base(outputPath)
	return fmt.Sprintf("build_%s_%d.sh", trimExt(base), time.Now().UnixNano())
}

func trimExt(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}

func shellJoin(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += shellQuote(a)
	}
	return out
}

// shellQuote wraps an argument in single quotes, escaping any embedded
// single quote, so the emitted script is safe regardless of path content.
func shellQuote(s string) string {
	quoted := "'"
	for _, r := range s {
		if r == '\'' {
			quoted += `'\''`
		} else {
			quoted += string(r)
		}
	}
	return quoted + "'"
}
