package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type testConfig struct {
	level, output, file string
}

func (c testConfig) GetLevel() string  { return c.level }
func (c testConfig) GetOutput() string { return c.output }
func (c testConfig) GetFile() string   { return c.file }

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"verbose": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestInitFileOutputWritesStructuredFields(t *testing.T) {
	prev := defaultLogger.Load()
	t.Cleanup(func() { SetDefaultLogger(prev) })

	path := filepath.Join(t.TempDir(), "settlement.log")
	if err := Init(testConfig{level: "info", output: "file", file: path}); err != nil {
		t.Fatalf("init: %v", err)
	}

	With(zap.Int64("merchant_id", 7)).Info("Settled %d wei", 100)
	Debug("hidden at info level")
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"message":"Settled 100 wei"`) || !strings.Contains(out, `"merchant_id":7`) {
		t.Fatalf("unexpected log output %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %s", out)
	}
}

func TestCallerPointsAtCallSite(t *testing.T) {
	prev := defaultLogger.Load()
	t.Cleanup(func() { SetDefaultLogger(prev) })

	path := filepath.Join(t.TempDir(), "caller.log")
	if err := Init(testConfig{level: "info", output: "file", file: path}); err != nil {
		t.Fatalf("init: %v", err)
	}

	Info("package level")
	child := With(zap.String("scope", "child"))
	child.Info("child")
	child.With(zap.String("scope", "grandchild")).Warn("grandchild")
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d: %s", len(lines), data)
	}
	for _, line := range lines {
		if !strings.Contains(line, `"caller":"logger/logger_test.go:`) {
			t.Fatalf("caller should be the test file: %s", line)
		}
	}
}

func TestInitFileOutputRequiresPath(t *testing.T) {
	if err := Init(testConfig{output: "file"}); err == nil {
		t.Fatal("expected error for empty log file path")
	}
}
