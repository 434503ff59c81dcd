package logging

import "testing"

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"prod", "production", "dev", ""} {
		logger, err := New(mode, "")
		if err != nil {
			t.Fatalf("New(%q): %v", mode, err)
		}
		if logger == nil {
			t.Fatalf("New(%q) returned nil logger", mode)
		}
	}
}

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "warn", "warning", "error"} {
		if _, err := New("dev", level); err != nil {
			t.Errorf("New with level %q: %v", level, err)
		}
	}

	if _, err := New("dev", "verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}
