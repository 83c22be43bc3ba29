package supervisor

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// writeScript materialises a runtime stand-in. The launch contract appends
// headless and boot-expression flags to every invocation, so fixtures exec
// through a shell script that ignores its arguments.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runtime.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write fixture script: %v", err)
	}
	return path
}

// readUntil drains ReadAvailable until the accumulated output satisfies the
// predicate or the deadline passes.
func readUntil(t *testing.T, s *Supervisor, deadline time.Duration, pred func([]byte) bool) []byte {
	t.Helper()
	var acc []byte
	stopAt := time.Now().Add(deadline)
	for time.Now().Before(stopAt) {
		chunk, err := s.ReadAvailable()
		if err != nil {
			t.Fatalf("ReadAvailable: %v", err)
		}
		acc = append(acc, chunk...)
		if pred(acc) {
			return acc
		}
	}
	t.Fatalf("output predicate not satisfied within %v, got %q", deadline, acc)
	return nil
}

func TestStartValidatesInputs(t *testing.T) {
	cases := []struct {
		name             string
		executable, home string
		boot             string
	}{
		{name: "empty executable", home: "/tmp", boot: "ok."},
		{name: "empty home", executable: "/bin/true", boot: "ok."},
		{name: "empty boot", executable: "/bin/true", home: "/tmp"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New()
			if _, err := s.Start(tc.executable, tc.home, tc.boot); err == nil {
				t.Fatal("expected validation error")
			}
			if got := s.State(); got != StateNotStarted {
				t.Fatalf("state = %v, want %v", got, StateNotStarted)
			}
		})
	}
}

func TestArgvContract(t *testing.T) {
	got := Argv("init:boot().")
	want := []string{"beam.smp", "--", "-noshell", "-eval", "init:boot()."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Argv = %v, want %v", got, want)
	}

	env := LaunchEnv("/data/runtime")
	wantEnv := []string{"HOME=/data/runtime", "TERM=dumb"}
	if !reflect.DeepEqual(env, wantEnv) {
		t.Fatalf("LaunchEnv = %v, want %v", env, wantEnv)
	}
}

func TestStartIdempotentWhileRunning(t *testing.T) {
	script := writeScript(t, "exec cat")
	s := New(WithLogger(t))
	defer s.Stop()

	pid, err := s.Start(script, t.TempDir(), "ignored")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("pid = %d, want > 0", pid)
	}

	again, err := s.Start(script, t.TempDir(), "ignored")
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if again != pid {
		t.Fatalf("second Start returned pid %d, want %d", again, pid)
	}
	if !s.IsAlive() {
		t.Fatal("IsAlive = false immediately after Start")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	script := writeScript(t, "exec cat")
	s := New(WithLogger(t))

	if _, err := s.Start(script, t.TempDir(), "ignored"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.WriteLine("abc"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	readUntil(t, s, 5*time.Second, func(acc []byte) bool {
		return bytes.Contains(acc, []byte("abc\n"))
	})

	s.Stop()
	if s.IsAlive() {
		t.Fatal("IsAlive = true after Stop")
	}
	if got := s.State(); got != StateStopped {
		t.Fatalf("state = %v, want %v", got, StateStopped)
	}
}

func TestLaunchEnvironment(t *testing.T) {
	script := writeScript(t, `echo "home=$HOME term=$TERM"`+"\nexec sleep 30")
	home := t.TempDir()
	s := New(WithLogger(t))
	defer s.Stop()

	if _, err := s.Start(script, home, "ignored"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	readUntil(t, s, 5*time.Second, func(acc []byte) bool {
		return bytes.Contains(acc, []byte("home="+home+" term=dumb"))
	})
}

func TestStderrMergedIntoOutput(t *testing.T) {
	script := writeScript(t, "echo out\necho err 1>&2\nexec sleep 30")
	s := New(WithLogger(t))
	defer s.Stop()

	if _, err := s.Start(script, t.TempDir(), "ignored"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	readUntil(t, s, 5*time.Second, func(acc []byte) bool {
		return bytes.Contains(acc, []byte("out\n")) && bytes.Contains(acc, []byte("err\n"))
	})
}

func TestReadAvailableBoundedWithSilentRuntime(t *testing.T) {
	script := writeScript(t, "exec sleep 30")
	timeout := 100 * time.Millisecond
	s := New(WithLogger(t), WithReadTimeout(timeout))
	defer s.Stop()

	if _, err := s.Start(script, t.TempDir(), "ignored"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	started := time.Now()
	chunk, err := s.ReadAvailable()
	elapsed := time.Since(started)
	if err != nil {
		t.Fatalf("ReadAvailable: %v", err)
	}
	if len(chunk) != 0 {
		t.Fatalf("ReadAvailable = %q, want empty", chunk)
	}
	// Generous slack for scheduling latency; the point is that the call
	// does not block indefinitely.
	if elapsed > timeout+2*time.Second {
		t.Fatalf("ReadAvailable took %v, want roughly %v", elapsed, timeout)
	}
}

func TestStopIdempotentAndSafeWhenNeverStarted(t *testing.T) {
	s := New(WithLogger(t))

	s.Stop()
	s.Stop()

	if s.IsAlive() {
		t.Fatal("IsAlive = true without a runtime")
	}
	chunk, err := s.ReadAvailable()
	if err != nil || len(chunk) != 0 {
		t.Fatalf("ReadAvailable = %q, %v, want empty, nil", chunk, err)
	}
	if err := s.WriteLine("ignored"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
}

func TestOperationsInertAfterStop(t *testing.T) {
	script := writeScript(t, "exec cat")
	s := New(WithLogger(t))

	if _, err := s.Start(script, t.TempDir(), "ignored"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	s.Stop()

	chunk, err := s.ReadAvailable()
	if err != nil || len(chunk) != 0 {
		t.Fatalf("ReadAvailable after Stop = %q, %v, want empty, nil", chunk, err)
	}
	if err := s.WriteLine("ignored"); err != nil {
		t.Fatalf("WriteLine after Stop: %v", err)
	}
	if s.Pid() != 0 {
		t.Fatalf("Pid = %d after Stop, want 0", s.Pid())
	}
}

func TestRestartAfterStop(t *testing.T) {
	script := writeScript(t, "exec cat")
	s := New(WithLogger(t))
	defer s.Stop()

	first, err := s.Start(script, t.TempDir(), "ignored")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()

	second, err := s.Start(script, t.TempDir(), "ignored")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if second == first {
		t.Fatalf("restart returned pid %d twice", second)
	}
	if !s.IsAlive() {
		t.Fatal("IsAlive = false after restart")
	}
}

func TestExternalKillObservedLazily(t *testing.T) {
	script := writeScript(t, "exec sleep 30")
	s := New(WithLogger(t))
	defer s.Stop()

	pid, err := s.Start(script, t.TempDir(), "ignored")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		t.Fatalf("kill fixture: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for s.IsAlive() {
		if time.Now().After(deadline) {
			t.Fatal("IsAlive still true after external kill")
		}
		time.Sleep(10 * time.Millisecond)
	}

	chunk, err := s.ReadAvailable()
	if err != nil || len(chunk) != 0 {
		t.Fatalf("ReadAvailable after crash = %q, %v, want empty, nil", chunk, err)
	}
	if err := s.WriteLine("ignored"); err != nil {
		t.Fatalf("WriteLine after crash: %v", err)
	}
}

func TestStartSpawnFailureLeavesNoState(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	s := New(WithLogger(t))

	_, err := s.Start(missing, t.TempDir(), "ignored")
	if err == nil {
		t.Fatal("expected spawn failure")
	}
	var resErr *ResourceError
	if !errors.As(err, &resErr) {
		t.Fatalf("error %T, want *ResourceError", err)
	}
	if got := s.State(); got != StateNotStarted {
		t.Fatalf("state = %v, want %v", got, StateNotStarted)
	}

	// The failed attempt must not have consumed the supervisor: a real
	// runtime still launches.
	script := writeScript(t, "exec cat")
	if _, err := s.Start(script, t.TempDir(), "ignored"); err != nil {
		t.Fatalf("Start after failure: %v", err)
	}
	s.Stop()
}

func TestDescriptorAccounting(t *testing.T) {
	if _, err := os.ReadDir("/proc/self/fd"); err != nil {
		t.Skip("/proc/self/fd not available")
	}
	script := writeScript(t, "exec cat")
	s := New(WithLogger(t))

	cycle := func() {
		if _, err := s.Start(script, t.TempDir(), "ignored"); err != nil {
			t.Fatalf("Start: %v", err)
		}
		s.Stop()
	}

	// Warm-up so lazily created runtime-internal descriptors do not skew
	// the baseline.
	cycle()
	before := countFDs(t)
	for i := 0; i < 3; i++ {
		cycle()
	}
	after := countFDs(t)
	if after > before {
		t.Fatalf("descriptor count grew from %d to %d across start/stop cycles", before, after)
	}
}

func countFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Fatalf("read /proc/self/fd: %v", err)
	}
	return len(entries)
}
