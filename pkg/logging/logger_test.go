package logging

import "testing"

func TestNewNopDoesNotPanic(t *testing.T) {
	l := NewNop()
	l.Debug("debug", "k", "v")
	l.Info("info", "k", "v")
	l.Warn("warn", "k", "v")
	l.Error("error", "k", "v")
	if err := l.Sync(); err != nil {
		t.Logf("sync returned %v (expected on some stdout targets)", err)
	}
}

func TestNewBuildsDevelopmentLoggerByDefault(t *testing.T) {
	l, err := New("development")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l == nil {
		t.Fatal("expected a non-nil logger")
	}
	l.Info("hello")
}

func TestNewBuildsProductionLogger(t *testing.T) {
	l, err := New("production")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l == nil {
		t.Fatal("expected a non-nil logger")
	}
	l.Info("hello")
}
