package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/hylla/splitledger/internal/config"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("SPLITLEDGER_DEV_MODE", "false")
	os.Exit(m.Run())
}

// tokenPattern extracts invitation tokens from proposal output.
var tokenPattern = regexp.MustCompile(`token=(\S+)`)

// cliHarness runs commands against one temp database and config path.
type cliHarness struct {
	dbPath  string
	cfgPath string
}

// newCLIHarness creates isolated storage paths for one test.
func newCLIHarness(t *testing.T) cliHarness {
	t.Helper()
	dir := t.TempDir()
	return cliHarness{
		dbPath:  filepath.Join(dir, "splitledger.db"),
		cfgPath: filepath.Join(dir, "config.toml"),
	}
}

// run executes args and returns stdout.
func (h cliHarness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{"--db", h.dbPath, "--config", h.cfgPath}, args...)
	err := run(context.Background(), full, &out, io.Discard)
	return out.String(), err
}

// mustRun executes args and fails the test on error.
func (h cliHarness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, args...)
	if err != nil {
		t.Fatalf("run(%v) error = %v\noutput:\n%s", args, err, out)
	}
	return out
}

// TestRunVersion verifies the version flag prints the app name.
func TestRunVersion(t *testing.T) {
	var out strings.Builder
	err := run(context.Background(), []string{"--version"}, &out, io.Discard)
	if err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
	if !strings.Contains(out.String(), "splitledger") {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

// TestRunPaths verifies path resolution honors flag overrides without opening storage.
func TestRunPaths(t *testing.T) {
	h := newCLIHarness(t)
	out := h.mustRun(t, "paths")
	if !strings.Contains(out, "db: "+h.dbPath) {
		t.Fatalf("expected db override in output, got %q", out)
	}
	if !strings.Contains(out, "config: "+h.cfgPath) {
		t.Fatalf("expected config override in output, got %q", out)
	}
	if _, err := os.Stat(h.dbPath); !os.IsNotExist(err) {
		t.Fatalf("expected paths to leave the database untouched, stat err = %v", err)
	}
}

// TestRunAllocateConfirmActivate verifies the initial allocation flow end to end.
func TestRunAllocateConfirmActivate(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun(t, "work", "register", "w1", "--owner", "alice", "--live")

	out := h.mustRun(t, "allocate", "w1", "--requester", "alice", "--split", "alice=0.6", "--split", "bob=0.4")
	if !strings.Contains(out, "w1 revision 1") {
		t.Fatalf("expected revision 1 in allocate output, got %q", out)
	}
	match := tokenPattern.FindStringSubmatch(out)
	if len(match) != 2 {
		t.Fatalf("expected invitation token in allocate output, got %q", out)
	}

	out = h.mustRun(t, "confirm", match[1], "--holder", "bob")
	if !strings.Contains(out, "w1 activated revision 1") {
		t.Fatalf("expected activation after confirm, got %q", out)
	}

	out = h.mustRun(t, "history", "w1")
	for _, want := range []string{"alice", "bob", "0.6000", "0.4000", "active"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in history output, got %q", want, out)
		}
	}

	out = h.mustRun(t, "verify", "w1")
	if !strings.Contains(out, "w1: ok") {
		t.Fatalf("expected clean verify, got %q", out)
	}

	out = h.mustRun(t, "events", "w1")
	if !strings.Contains(out, "revision_activated") {
		t.Fatalf("expected activation event, got %q", out)
	}
}

// TestRunSettleFoldsPendingIntoOwner verifies settle activates a released work's first allocation.
func TestRunSettleFoldsPendingIntoOwner(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun(t, "work", "register", "w1", "--owner", "alice", "--live")
	h.mustRun(t, "allocate", "w1", "--requester", "alice", "--split", "alice=0.6", "--split", "bob=0.4")

	out := h.mustRun(t, "settle", "--as-of", "2026-03-10T09:30:00Z")
	if !strings.Contains(out, "settled 1 work(s)") || !strings.Contains(out, "settled w1") {
		t.Fatalf("expected w1 settled, got %q", out)
	}

	out = h.mustRun(t, "history", "w1")
	for _, want := range []string{"alice", "1.0000", "active"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in history output, got %q", want, out)
		}
	}
	if strings.Contains(out, "bob") {
		t.Fatalf("expected pending bob released, got %q", out)
	}

	out = h.mustRun(t, "settle")
	if !strings.Contains(out, "settled 0 work(s)") {
		t.Fatalf("expected second settle to be a no-op, got %q", out)
	}
}

// TestRunAllocateRejectsBadShare verifies malformed share flags fail before storage writes.
func TestRunAllocateRejectsBadShare(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun(t, "work", "register", "w1", "--owner", "alice")
	cases := []string{"alice", "=0.5", "alice=abc"}
	for _, share := range cases {
		t.Run(share, func(t *testing.T) {
			if _, err := h.run(t, "allocate", "w1", "--requester", "alice", "--split", share); err == nil {
				t.Fatalf("expected error for share %q", share)
			}
		})
	}
	out := h.mustRun(t, "history", "w1")
	if !strings.Contains(out, "no splits") {
		t.Fatalf("expected no splits after rejected allocations, got %q", out)
	}
}

// TestRunLockMismatchReportsNoChange verifies a mismatched lock request leaves splits unlocked.
func TestRunLockMismatchReportsNoChange(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun(t, "work", "register", "w1", "--owner", "alice", "--live")
	h.mustRun(t, "allocate", "w1", "--requester", "alice", "--split", "alice=1")

	out, err := h.run(t, "lock", "w1", "--holder", "alice", "--advance", "adv-1", "--split", "999")
	if err == nil {
		t.Fatalf("expected lock mismatch error, got output %q", out)
	}

	out = h.mustRun(t, "lock", "w1", "--holder", "alice", "--advance", "adv-2", "--split", "1")
	if !strings.Contains(out, "lock: 1") {
		t.Fatalf("expected split 1 locked, got %q", out)
	}
	out = h.mustRun(t, "unlock", "w1", "--holder", "alice", "--advance", "adv-2", "--split", "1")
	if !strings.Contains(out, "unlock: 1") {
		t.Fatalf("expected split 1 unlocked, got %q", out)
	}
}

// TestRunInvalidConfig verifies config validation errors abort ledger commands.
func TestRunInvalidConfig(t *testing.T) {
	h := newCLIHarness(t)
	if err := os.WriteFile(h.cfgPath, []byte("[ledger]\nexpiration_days = 0\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := h.run(t, "history", "w1"); err == nil {
		t.Fatal("expected config validation error")
	}
}

// TestRuntimeLoggerDevFile verifies dev mode writes logfmt lines to a daily file.
func TestRuntimeLoggerDevFile(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	logger, err := newRuntimeLogger(loggerOptions{
		stderr:  io.Discard,
		appName: "split ledger",
		devMode: true,
		cfg:     config.LoggingConfig{Level: "debug", DevFile: config.DevFileConfig{Enabled: true, Dir: dir}},
		now:     func() time.Time { return day },
	})
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	want := filepath.Join(dir, "split-ledger-20260310.log")
	if logger.DevLogPath() != want {
		t.Fatalf("DevLogPath() = %q, want %q", logger.DevLogPath(), want)
	}
	logger.Info("command flow start", "command", "history")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	content, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "command=history") {
		t.Fatalf("expected logfmt line in dev log, got %q", content)
	}
}

// TestRuntimeLoggerRejectsUnknownLevel verifies level parsing errors surface.
func TestRuntimeLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := newRuntimeLogger(loggerOptions{cfg: config.LoggingConfig{Level: "loud"}})
	if err == nil {
		t.Fatal("expected level parse error")
	}
}
