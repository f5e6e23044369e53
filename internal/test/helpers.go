package test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// T wraps *testing.T with the fatal assertions used across the module.
type T struct {
	*testing.T
}

func FromT(t *testing.T) *T {
	t.Helper()
	return &T{t}
}

// fatal formats msgAndArgs the way testing.T.Fatalf would when the first
// element is a format string, and falls back to fallback when empty.
func (t *T) fatal(fallback string, msgAndArgs []any) {
	t.Helper()
	switch {
	case len(msgAndArgs) == 0:
		t.Fatal(fallback)
	case isFormat(msgAndArgs[0]):
		t.Fatalf(msgAndArgs[0].(string), msgAndArgs[1:]...)
	default:
		t.Fatal(msgAndArgs...)
	}
}

func isFormat(v any) bool {
	_, ok := v.(string)
	return ok
}

// Assert fails the test when condition is false. An optional format string
// and arguments describe the failure.
func (t *T) Assert(condition bool, msgAndArgs ...any) {
	t.Helper()
	if !condition {
		t.fatal("assertion failed", msgAndArgs)
	}
}

func (t *T) Assertf(condition bool, format string, args ...any) {
	t.Helper()
	if !condition {
		t.Fatalf(format, args...)
	}
}

// Equal compares with reflect.DeepEqual, so nil and empty slices differ.
func (t *T) Equal(got, want any) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v\nwant %#v", got, want)
	}
}

func (t *T) CheckErr(err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ExpectErr fails unless errors.Is(err, target).
func (t *T) ExpectErr(err, target error) {
	t.Helper()
	switch {
	case err == nil:
		t.Fatalf("expected %q, got no error", target)
	case !errors.Is(err, target):
		t.Fatalf("expected %q in the chain of %q", target, err)
	}
}

func (t *T) ShouldPanic(f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic")
		}
	}()
	f()
}

// Testdata reads a file under the package testdata directory.
func (t *T) Testdata(name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("reading testdata: %v", err)
	}
	return b
}

// TempFile writes content to a file in a per-test temporary directory and
// returns its path.
func (t *T) TempFile(name string, content []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("creating temp dir: %v", err)
	}
	if err := os.WriteFile(p, content, 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return p
}
