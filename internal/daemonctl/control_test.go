package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"magpie/internal/api"
	"magpie/internal/testsupport"
)

const unreachable = "127.0.0.1:1"

func runningServer(t *testing.T, pid int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: pid})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWaitForShutdownReturnsWhenUnreachable(t *testing.T) {
	client := api.NewClient(unreachable, "")
	if err := WaitForShutdown(context.Background(), client, time.Second); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestWaitForShutdownTimesOut(t *testing.T) {
	srv := runningServer(t, 4242)
	err := WaitForShutdown(context.Background(), api.NewClient(srv.URL, ""), 300*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "still answering") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestUnauthorizedCountsAsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := EnsureStarted(context.Background(), api.NewClient(srv.URL, ""), "", LaunchOptions{}, time.Second)
	if !api.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error without launching, got %v", err)
	}
}

func TestEnsureStartedAlreadyRunning(t *testing.T) {
	srv := runningServer(t, 4242)
	// An empty executable path would fail if a launch were attempted.
	res, err := EnsureStarted(context.Background(), api.NewClient(srv.URL, ""), "", LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if res.State != StartStateAlreadyRunning || res.PID != 4242 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := Launch(" ", LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}

func TestStopAndTerminateNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := StopAndTerminate(context.Background(), api.NewClient(unreachable, ""), cfg, time.Second)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestStopAndTerminateRefusesSelf(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	srv := runningServer(t, os.Getpid())
	_, err := StopAndTerminate(context.Background(), api.NewClient(srv.URL, ""), cfg, time.Second)
	if err == nil || !strings.Contains(err.Error(), "refusing") {
		t.Fatalf("expected refusal, got %v", err)
	}
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	if pid, err := ReadPID(filepath.Join(dir, "missing.pid")); err != nil || pid != 0 {
		t.Fatalf("missing file: pid=%d err=%v", pid, err)
	}
	good := filepath.Join(dir, "good.pid")
	testsupport.WriteFile(t, good, "1234\n")
	if pid, err := ReadPID(good); err != nil || pid != 1234 {
		t.Fatalf("good file: pid=%d err=%v", pid, err)
	}
	bad := filepath.Join(dir, "bad.pid")
	testsupport.WriteFile(t, bad, "nope")
	if _, err := ReadPID(bad); err == nil {
		t.Fatal("expected malformed pid error")
	}
}

func TestForceKillProcess(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "magpied.pid")

	if _, err := ForceKillProcess(pidPath, 0); err == nil {
		t.Fatal("expected error without a pid")
	}
	testsupport.WriteFile(t, pidPath, strconv.Itoa(os.Getpid()))
	if _, err := ForceKillProcess(pidPath, 0); err == nil || !strings.Contains(err.Error(), "refusing") {
		t.Fatalf("expected refusal to kill self, got %v", err)
	}

	sleepBin, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	child := exec.Command(sleepBin, "30")
	if err := child.Start(); err != nil {
		t.Fatalf("start child: %v", err)
	}
	testsupport.WriteFile(t, pidPath, strconv.Itoa(child.Process.Pid))

	killed, err := ForceKillProcess(pidPath, 0)
	if err != nil {
		t.Fatalf("ForceKillProcess: %v", err)
	}
	if killed != child.Process.Pid {
		t.Fatalf("killed pid %d, want %d", killed, child.Process.Pid)
	}
	if err := child.Wait(); err == nil {
		t.Fatal("expected child to exit from SIGKILL")
	}
	if _, err := os.Stat(pidPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("pid file should be removed, stat err=%v", err)
	}
}
