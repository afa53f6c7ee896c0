// Package testutil holds small assertion and context helpers shared by
// this module's package tests, grounded in the teacher library's
// internal/testutil.
package testutil

import (
	"context"
	"testing"
	"time"
)

// DefaultTimeout is the context deadline tests use when none is supplied
// explicitly.
const DefaultTimeout = 5 * time.Second

// WithTimeout returns a context bounded by DefaultTimeout, and registers
// its cancel func to run when t finishes.
func WithTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

// RequireNoError fails the test immediately if err is non-nil.
func RequireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// RequireError fails the test immediately if err is nil.
func RequireError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
}

// AssertEqual fails the test if got != want, without stopping it.
func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
