package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"profilepm/internal/errs"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	fn()
	_ = w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	_ = r.Close()
	return buf.String()
}

type cliEnv struct {
	home    string
	install string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PROFILEPM_INSTALL_PATH", "")
	install := filepath.Join(home, "Multilogin")
	if err := os.MkdirAll(install, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	return cliEnv{home: home, install: install}
}

func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	full := append([]string{"--install-path", e.install, "--log-level", "disabled"}, args...)
	var runErr error
	out := captureStdout(t, func() {
		cmd := newRootCmd()
		cmd.SetArgs(full)
		cmd.SetErr(io.Discard)
		cmd.SetOut(io.Discard)
		runErr = cmd.Execute()
	})
	return out, runErr
}

func writeZipBundle(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "bundle.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("Default/Preferences")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	_, _ = w.Write([]byte(`{"profile":{}}`))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("file close: %v", err)
	}
	return path
}

func TestNewRootCmdIncludesCoreCommands(t *testing.T) {
	cmd := newRootCmd()
	got := map[string]bool{}
	for _, c := range cmd.Commands() {
		got[c.Name()] = true
	}
	for _, want := range []string{"import", "list", "doctor", "candidates", "version"} {
		if !got[want] {
			t.Fatalf("expected command %q", want)
		}
	}
}

// runUsage executes args and returns what the command wrote to its own
// output, which is where usage goes.
func runUsage(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	err := cmd.Execute()
	return buf.String(), err
}

func TestUsageErrorsExitTwo(t *testing.T) {
	newCLIEnv(t)
	cases := []struct {
		name string
		args []string
		msg  string
	}{
		{"no command", nil, "a command is required"},
		{"unknown command", []string{"bogus"}, `unknown command "bogus"`},
		{"import without source", []string{"import"}, "accepts 1 arg(s)"},
		{"import unknown flag", []string{"import", "--bogusflag"}, "unknown flag: --bogusflag"},
		{"list with argument", []string{"list", "extra"}, `unknown command "extra"`},
		{"candidates add without path", []string{"candidates", "add"}, "accepts 1 arg(s)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := runUsage(t, tc.args...)
			var ex ExitCoder
			if !errors.As(err, &ex) || ex.ExitCode() != 2 {
				t.Fatalf("expected exit code 2, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("error %q does not mention %q", err, tc.msg)
			}
			if !strings.Contains(out, "Usage:") {
				t.Fatalf("expected usage text, got %q", out)
			}
		})
	}
}

func TestImportUsageNamesSourceArgument(t *testing.T) {
	newCLIEnv(t)
	out, _ := runUsage(t, "import")
	if !strings.Contains(out, "import <source>") {
		t.Fatalf("import usage should show its argument, got %q", out)
	}
}

func TestImportRejectsBadModeBeforeService(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "import", writeZipBundle(t, env.home), "--canvas", "loud")
	var ex ExitCoder
	if !errors.As(err, &ex) || ex.ExitCode() != 2 {
		t.Fatalf("expected usage exit error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.home, ".profilepm")); !os.IsNotExist(err) {
		t.Fatalf("service should not be created for a bad flag")
	}
}

func TestImportAndListJSON(t *testing.T) {
	env := newCLIEnv(t)
	src := writeZipBundle(t, env.home)
	out, err := env.run(t, "--json", "import", src, "--name", "travel", "--webgl", "real", "--notes", "trip")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	var imported struct {
		Name       string `json:"name"`
		Format     string `json:"format"`
		Digest     string `json:"digest"`
		Descriptor struct {
			Notes string `json:"notes"`
			WebGL struct {
				Mode string `json:"mode"`
			} `json:"webgl"`
		} `json:"descriptor"`
	}
	if err := json.Unmarshal([]byte(out), &imported); err != nil {
		t.Fatalf("decode import output: %v\n%s", err, out)
	}
	if imported.Name != "travel" || imported.Format != "zip" || !strings.HasPrefix(imported.Digest, "blake3:") {
		t.Fatalf("unexpected import output: %+v", imported)
	}
	if imported.Descriptor.Notes != "trip" || imported.Descriptor.WebGL.Mode != "real" {
		t.Fatalf("overrides not applied: %+v", imported.Descriptor)
	}

	out, err = env.run(t, "--json", "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var listing struct {
		Entries []struct {
			Name string `json:"name"`
		} `json:"entries"`
	}
	if err := json.Unmarshal([]byte(out), &listing); err != nil {
		t.Fatalf("decode list output: %v\n%s", err, out)
	}
	if len(listing.Entries) != 1 || listing.Entries[0].Name != "travel" {
		t.Fatalf("unexpected listing: %s", out)
	}
}

func TestImportCollisionReportsKind(t *testing.T) {
	env := newCLIEnv(t)
	src := writeZipBundle(t, env.home)
	if _, err := env.run(t, "import", src, "-n", "dup"); err != nil {
		t.Fatalf("first import failed: %v", err)
	}
	_, err := env.run(t, "import", src, "-n", "dup")
	if errs.KindOf(err) != "NameCollision" {
		t.Fatalf("expected NameCollision, got %v", err)
	}
}

func TestListTextOutput(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "no profiles in") {
		t.Fatalf("unexpected output: %q", out)
	}
	if _, err := env.run(t, "import", writeZipBundle(t, env.home), "-n", "solo"); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	out, err = env.run(t, "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "- solo") || !strings.Contains(out, "ago") && !strings.Contains(out, "now") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestListMissingInstall(t *testing.T) {
	env := newCLIEnv(t)
	env.install = filepath.Join(env.home, "gone")
	_, err := env.run(t, "list")
	if !errors.Is(err, errs.ErrInstallNotFound) {
		t.Fatalf("expected install not found, got %v", err)
	}
}

func TestCandidatesRoundTrip(t *testing.T) {
	env := newCLIEnv(t)
	extra := filepath.Join(env.home, "portable")
	if _, err := env.run(t, "candidates", "add", extra); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	out, err := env.run(t, "candidates", "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 || lines[0] != "1. "+env.install || lines[1] != "2. "+extra {
		t.Fatalf("unexpected search order:\n%s", out)
	}
	if _, err := env.run(t, "candidates", "remove", extra); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := env.run(t, "candidates", "remove", extra); err == nil {
		t.Fatalf("expected error removing unknown candidate")
	}
}

func TestDoctorHealthy(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.run(t, "import", writeZipBundle(t, env.home), "-n", "ok"); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	out, err := env.run(t, "doctor")
	if err != nil {
		t.Fatalf("doctor failed: %v", err)
	}
	if strings.TrimSpace(out) != "healthy" {
		t.Fatalf("unexpected doctor output: %q", out)
	}
}

func TestVersionJSON(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "--json", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode version output: %v", err)
	}
	if info["version"] == "" || info["go"] == "" {
		t.Fatalf("unexpected version info: %v", info)
	}
}
