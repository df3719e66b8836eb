package main

import (
	"os"
	"testing"
	"time"
)

func TestIntEnvParsesValue(t *testing.T) {
	t.Setenv("SCORELINE_TEST_INT", "42")
	got := intEnv("SCORELINE_TEST_INT", 7)
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestIntEnvFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("SCORELINE_TEST_INT_BAD", "not-a-number")
	got := intEnv("SCORELINE_TEST_INT_BAD", 7)
	if got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}

func TestDurationEnvParsesValue(t *testing.T) {
	t.Setenv("SCORELINE_TEST_DURATION", "150ms")
	got := durationEnv("SCORELINE_TEST_DURATION", time.Second)
	if got != 150*time.Millisecond {
		t.Fatalf("expected 150ms, got %s", got)
	}
}

func TestBoolEnvFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("SCORELINE_TEST_BOOL_BAD", "maybe")
	if got := boolEnv("SCORELINE_TEST_BOOL_BAD", true); !got {
		t.Fatalf("expected fallback true")
	}
}

func TestEnvHelpersUseFallbackWhenUnset(t *testing.T) {
	_ = os.Unsetenv("SCORELINE_TEST_INT_UNSET")
	_ = os.Unsetenv("SCORELINE_TEST_DURATION_UNSET")

	if got := intEnv("SCORELINE_TEST_INT_UNSET", 9); got != 9 {
		t.Fatalf("expected fallback 9, got %d", got)
	}
	if got := durationEnv("SCORELINE_TEST_DURATION_UNSET", 3*time.Second); got != 3*time.Second {
		t.Fatalf("expected fallback 3s, got %s", got)
	}
}

func TestBuildSnapshotStoreFromEnvProfiles(t *testing.T) {
	t.Setenv("SCORELINE_HISTORY_DSN", "")

	t.Setenv("SCORELINE_BACKEND_PROFILE", "memory")
	store, err := buildSnapshotStoreFromEnv()
	if err != nil {
		t.Fatalf("memory profile: %v", err)
	}
	defer store.Close()

	t.Setenv("SCORELINE_BACKEND_PROFILE", "production")
	t.Setenv("SCORELINE_POSTGRES_DSN", "")
	if _, err := buildSnapshotStoreFromEnv(); err == nil {
		t.Fatalf("expected error for production profile without DSN")
	}

	t.Setenv("SCORELINE_BACKEND_PROFILE", "made-up")
	if _, err := buildSnapshotStoreFromEnv(); err == nil {
		t.Fatalf("expected error for unsupported profile")
	}
}
