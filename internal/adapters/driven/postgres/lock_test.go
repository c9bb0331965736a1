package postgres

import (
	"context"
	"testing"
)

func TestHashLockName(t *testing.T) {
	a := hashLockName("index-write")
	b := hashLockName("index-write")
	if a != b {
		t.Errorf("expected stable hash, got %d and %d", a, b)
	}
	if hashLockName("index-write") == hashLockName("index-read") {
		t.Error("expected distinct names to hash differently")
	}
}

func TestAdvisoryLock_ExtendNotHeld(t *testing.T) {
	lock := NewAdvisoryLock(nil)
	if err := lock.Extend(context.Background(), "index-write", 0); err == nil {
		t.Error("expected error extending a lock that is not held")
	}
}

func TestAdvisoryLock_ReleaseNotHeld(t *testing.T) {
	lock := NewAdvisoryLock(nil)
	if err := lock.Release(context.Background(), "index-write"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
