package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/omeyang/xsingle/pkg/distributed/xsingle"
)

// runCLI 以文件后端运行一次命令。
func runCLI(t *testing.T, dir string, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	argv := append([]string{"xsinglectl", "--backend", "file://" + dir}, args...)
	code = runApp(context.Background(), argv, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestAcquireReleaseExists(t *testing.T) {
	dir := t.TempDir()

	code, out, _ := runCLI(t, dir, "exists", "reports.daily")
	if code != exitFailure || strings.TrimSpace(out) != "free" {
		t.Fatalf("exists before acquire = %d %q, want 1 free", code, out)
	}

	code, out, _ = runCLI(t, dir, "acquire", "reports.daily", "--timeout", "10m")
	if code != exitOK || !strings.Contains(out, "acquired") {
		t.Fatalf("acquire = %d %q, want 0 acquired", code, out)
	}

	code, out, _ = runCLI(t, dir, "acquire", "reports.daily")
	if code != exitAlreadyRunning || !strings.Contains(out, "already held") {
		t.Fatalf("second acquire = %d %q, want 3 already held", code, out)
	}

	code, out, _ = runCLI(t, dir, "exists", "reports.daily")
	if code != exitOK || strings.TrimSpace(out) != "held" {
		t.Fatalf("exists = %d %q, want 0 held", code, out)
	}

	for range 2 {
		code, out, _ = runCLI(t, dir, "release", "reports.daily")
		if code != exitOK || !strings.Contains(out, "released") {
			t.Fatalf("release = %d %q, want 0 released", code, out)
		}
	}

	code, _, _ = runCLI(t, dir, "exists", "reports.daily")
	if code != exitFailure {
		t.Fatalf("exists after release = %d, want 1", code)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()

	t.Run("passes exit code through", func(t *testing.T) {
		code, _, _ := runCLI(t, dir, "run", "--name", "job", "--", "sh", "-c", "exit 7")
		if code != 7 {
			t.Fatalf("code = %d, want 7", code)
		}
	})

	t.Run("forwards stdout", func(t *testing.T) {
		code, out, _ := runCLI(t, dir, "run", "--name", "job", "--", "echo", "hello")
		if code != exitOK || strings.TrimSpace(out) != "hello" {
			t.Fatalf("run = %d %q, want 0 hello", code, out)
		}
	})

	t.Run("already running", func(t *testing.T) {
		if code, _, _ := runCLI(t, dir, "acquire", "busy"); code != exitOK {
			t.Fatalf("acquire = %d", code)
		}
		code, out, errOut := runCLI(t, dir, "run", "--name", "busy", "--", "echo", "must not run")
		if code != exitAlreadyRunning {
			t.Fatalf("code = %d, want 3; stderr: %s", code, errOut)
		}
		if strings.Contains(out, "must not run") {
			t.Fatal("command must not run while the lock is held")
		}
	})

	t.Run("include args", func(t *testing.T) {
		// 同名锁被占用时，带参数摘要的 key 不受影响
		code, _, errOut := runCLI(t, dir, "run", "--name", "busy", "--include-args", "--", "true")
		if code != exitOK {
			t.Fatalf("code = %d, want 0; stderr: %s", code, errOut)
		}
	})

	t.Run("lock released after run", func(t *testing.T) {
		if code, _, _ := runCLI(t, dir, "run", "--name", "once", "--", "true"); code != exitOK {
			t.Fatalf("run = %d", code)
		}
		if code, _, _ := runCLI(t, dir, "exists", "once"); code != exitFailure {
			t.Fatalf("exists after run = %d, want 1", code)
		}
	})

	t.Run("time limit kills command", func(t *testing.T) {
		code, _, _ := runCLI(t, dir, "run", "--name", "slow", "--time-limit", "100ms", "--", "sleep", "5")
		if code != exitFailure {
			t.Fatalf("code = %d, want 1", code)
		}
	})
}

func TestUsageErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"missing command", nil},
		{"unknown command", []string{"frobnicate"}},
		{"missing key", []string{"acquire"}},
		{"too many keys", []string{"release", "a", "b"}},
		{"blank key", []string{"acquire", " "}},
		{"run without name", []string{"run", "--", "true"}},
		{"run without command", []string{"run", "--name", "job"}},
		{"negative limit", []string{"run", "--name", "job", "--time-limit", "-1s", "--", "true"}},
		{"unknown flag", []string{"acquire", "--bogus", "k"}},
		{"flag without value", []string{"acquire", "k", "--timeout"}},
		{"bad duration", []string{"acquire", "--timeout", "soon", "k"}},
		{"unknown global flag", []string{"--bogus", "exists", "k"}},
		{"bad log level", []string{"--log-level", "loud", "exists", "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, errOut := runCLI(t, dir, tt.args...); code != exitUsage {
				t.Fatalf("code = %d, want 2; stderr: %s", code, errOut)
			}
		})
	}
}

func TestBackendSelection(t *testing.T) {
	t.Run("no backend", func(t *testing.T) {
		t.Setenv("XSINGLE_BACKEND", "")
		var out, errOut bytes.Buffer
		code := runApp(context.Background(), []string{"xsinglectl", "exists", "k"}, &out, &errOut)
		if code != exitUsage {
			t.Fatalf("code = %d, want 2", code)
		}
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		var out, errOut bytes.Buffer
		code := runApp(context.Background(), []string{"xsinglectl", "-b", "ftp://host", "exists", "k"}, &out, &errOut)
		if code != exitUsage {
			t.Fatalf("code = %d, want 2; stderr: %s", code, errOut.String())
		}
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("XSINGLE_BACKEND", "file://"+t.TempDir())
		var out, errOut bytes.Buffer
		code := runApp(context.Background(), []string{"xsinglectl", "acquire", "k"}, &out, &errOut)
		if code != exitOK {
			t.Fatalf("code = %d, want 0; stderr: %s", code, errOut.String())
		}
	})

	t.Run("config file", func(t *testing.T) {
		lockDir := t.TempDir()
		cfgPath := filepath.Join(t.TempDir(), "xsingle.yaml")
		cfg := fmt.Sprintf("backend: file://%s\nlog:\n  level: debug\n  format: json\n", lockDir)
		if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
			t.Fatal(err)
		}

		var out, errOut bytes.Buffer
		code := runApp(context.Background(), []string{"xsinglectl", "-c", cfgPath, "acquire", "k"}, &out, &errOut)
		if code != exitOK {
			t.Fatalf("code = %d, want 0; stderr: %s", code, errOut.String())
		}
		if _, err := os.Stat(filepath.Join(lockDir, "k.lock")); err != nil {
			t.Fatalf("lock file not created in configured dir: %v", err)
		}
		if !strings.Contains(errOut.String(), `"component":"xsinglectl"`) {
			t.Fatalf("json debug log expected on stderr, got: %s", errOut.String())
		}
	})

	t.Run("missing config file", func(t *testing.T) {
		var out, errOut bytes.Buffer
		code := runApp(context.Background(), []string{"xsinglectl", "-c", "/nonexistent/x.yaml", "exists", "k"}, &out, &errOut)
		if code != exitFailure {
			t.Fatalf("code = %d, want 1", code)
		}
	})
}

func TestExitCode(t *testing.T) {
	var stderr bytes.Buffer
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{&exitError{code: 42}, 42},
		{fmt.Errorf("wrapped: %w", &xsingle.AlreadyRunningError{Key: "k"}), exitAlreadyRunning},
		{usagef("bad"), exitUsage},
		{xsingle.ErrInvalidTimeout, exitUsage},
		{errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err, &stderr); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
