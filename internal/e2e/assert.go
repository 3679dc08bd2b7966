package e2e

import (
	"errors"
	"strings"
	"testing"

	"github.com/klauern/agentsync/internal/sync"
)

// AssertSuccess fails the test if the command did not succeed.
func AssertSuccess(t *testing.T, r *Result) {
	t.Helper()
	if !r.Success() {
		t.Fatalf("[%s] expected success, got error: %v\nstdout: %s", r.Device, r.Err, r.Stdout)
	}
}

// AssertError fails the test if the command did not return an error.
func AssertError(t *testing.T, r *Result) {
	t.Helper()
	if r.Success() {
		t.Fatalf("[%s] expected error, but command succeeded\nstdout: %s", r.Device, r.Stdout)
	}
}

// AssertErrorKind fails the test unless the command failed with a sync
// error of the given kind.
func AssertErrorKind(t *testing.T, r *Result, kind sync.Kind) {
	t.Helper()
	AssertError(t, r)
	var serr *sync.Error
	if !errors.As(r.Err, &serr) {
		t.Fatalf("[%s] expected a sync error of kind %s, got %T: %v", r.Device, kind, r.Err, r.Err)
	}
	if serr.Kind != kind {
		t.Errorf("[%s] error kind = %s, want %s (%v)", r.Device, serr.Kind, kind, r.Err)
	}
}

// AssertOutputContains fails the test if stdout lacks any of the substrings.
func AssertOutputContains(t *testing.T, r *Result, substrs ...string) {
	t.Helper()
	for _, s := range substrs {
		if !strings.Contains(r.Stdout, s) {
			t.Errorf("[%s] expected output to contain %q\ngot: %s", r.Device, s, r.Stdout)
		}
	}
}

// AssertOutputNotContains fails the test if stdout contains the substring.
func AssertOutputNotContains(t *testing.T, r *Result, substr string) {
	t.Helper()
	if strings.Contains(r.Stdout, substr) {
		t.Errorf("[%s] expected output to NOT contain %q\ngot: %s", r.Device, substr, r.Stdout)
	}
}

// AssertFileEquals fails the test if relPath under f does not hold expected.
func AssertFileEquals(t *testing.T, f *Fixture, relPath, expected string) {
	t.Helper()
	if !f.Exists(relPath) {
		t.Fatalf("expected file to exist: %s", f.Path(relPath))
	}
	if got := f.ReadFile(relPath); got != expected {
		t.Errorf("file content mismatch for %s\nexpected: %q\ngot: %q", relPath, expected, got)
	}
}

// AssertFileNotExists fails the test if relPath exists under f.
func AssertFileNotExists(t *testing.T, f *Fixture, relPath string) {
	t.Helper()
	if f.Exists(relPath) {
		t.Errorf("expected file to NOT exist: %s", f.Path(relPath))
	}
}
