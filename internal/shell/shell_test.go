package shell

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRunCapturesOutputAndStatus(t *testing.T) {
	r := NewExecRunner(testLogger())

	res, err := r.Run(context.Background(), nil, "sh", "-c", "echo hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != 0 {
		t.Errorf("expected status 0, got %d", res.Status)
	}
	if res.Output != "hello" {
		t.Errorf("expected trimmed output %q, got %q", "hello", res.Output)
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	r := NewExecRunner(testLogger())

	res, err := r.Run(context.Background(), nil, "sh", "-c", "echo broken >&2; exit 3")
	if err != nil {
		t.Fatalf("non-zero exit must not be an error, got %v", err)
	}
	if res.Status != 3 {
		t.Errorf("expected status 3, got %d", res.Status)
	}
	if !strings.Contains(res.Output, "broken") {
		t.Errorf("expected stderr in combined output, got %q", res.Output)
	}
}

func TestRunAppliesEnvOverlay(t *testing.T) {
	r := NewExecRunner(testLogger())

	res, err := r.Run(context.Background(),
		map[string]string{"GERRITSYNC_TEST_VAR": "overlay-value"},
		"sh", "-c", "echo $GERRITSYNC_TEST_VAR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "overlay-value" {
		t.Errorf("expected overlay value, got %q", res.Output)
	}
}

func TestRunKeepsProcessEnvironment(t *testing.T) {
	t.Setenv("GERRITSYNC_INHERITED", "from-parent")
	r := NewExecRunner(testLogger())

	res, err := r.Run(context.Background(), map[string]string{"OTHER": "x"},
		"sh", "-c", "echo $GERRITSYNC_INHERITED")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "from-parent" {
		t.Errorf("expected inherited env var, got %q", res.Output)
	}
}

func TestRunMissingBinaryIsAnError(t *testing.T) {
	r := NewExecRunner(testLogger())

	_, err := r.Run(context.Background(), nil, "gerritsync-definitely-not-a-binary")
	if err == nil {
		t.Fatal("expected an error for a missing binary")
	}
}
