package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/insulink-log")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/insulink-log" {
		t.Errorf("got %q, want /tmp/insulink-log", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(wd, "logs"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv(EnvLogPath, "/tmp/insulink-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/insulink-env-log" {
		t.Errorf("got %q, want /tmp/insulink-env-log", got)
	}
}

func TestResolveDirFlagBeatsEnv(t *testing.T) {
	t.Setenv(EnvLogPath, "/tmp/from-env")
	got, _ := ResolveDir("/tmp/from-flag")
	if got != "/tmp/from-flag" {
		t.Errorf("got %q", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv(EnvLogPath, "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "insulink") {
		t.Errorf("default dir %q does not name the app", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"diagnostics_log.txt", "checkin_log.txt"} {
		if _, err := os.Stat(filepath.Join(tmp, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestAnswerLine(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}

	Answer("s-1", "sleep", "about seven hours")

	data, err := os.ReadFile(filepath.Join(tmp, "checkin_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	fields := strings.Split(strings.TrimSuffix(string(data), "\n"), "\t")
	if len(fields) != 5 {
		t.Fatalf("expected 5 tab-separated fields, got %q", data)
	}
	if fields[2] != "s-1" || fields[3] != "sleep" || fields[4] != "about seven hours" {
		t.Errorf("fields = %q", fields)
	}
}

func TestDiagnosticsWritten(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	SessionStart("s-2", "batch", "backend", 9)
	Capture(CaptureMetrics{Device: "fake", AudioS: 1.5, AutoStop: true})
	Warnf("slow %s", "backend")
	Close()

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"checkin_start", "session=s-2", "capture", "auto_stop=true", "slow backend"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("diagnostics missing %q:\n%s", want, data)
		}
	}
}

func TestHelpersNoopBeforeInit(t *testing.T) {
	Close()
	Info("ignored")
	Answer("s", "med", "ignored")
	Result("s", 5)
	Errorf("ignored %d", 1)
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close()
}
