package util

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWrapError(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	wrapped := WrapError("open stream", base)
	if wrapped.Error() != "failed to open stream: boom" {
		t.Errorf("WrapError() = %q", wrapped.Error())
	}
	if !errors.Is(wrapped, base) {
		t.Error("WrapError() does not unwrap to base error")
	}
	if WrapError("anything", nil) != nil {
		t.Error("WrapError(nil) != nil")
	}
}

func TestBackoff_DoublesUpToMax(t *testing.T) {
	t.Parallel()

	b := NewBackoff(time.Second, 5*time.Second)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() call %d = %v, want %v", i, got, w)
		}
	}

	b.Reset()
	if got := b.Current(); got != time.Second {
		t.Errorf("Current() after Reset = %v, want 1s", got)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ms   int64
		want string
	}{
		{45_000, "45s"},
		{154_000, "2m 34s"},
		{4_980_000, "1h 23m"},
		{0, "0s"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestValidatePath(t *testing.T) {
	t.Parallel()

	if err := ValidatePath("log_path", "/var/log/mic.log"); err != nil {
		t.Errorf("ValidatePath(clean) = %v, want nil", err)
	}
	if err := ValidatePath("log_path", ""); err == nil {
		t.Error("ValidatePath(empty) = nil, want error")
	}
	if err := ValidatePath("log_path", "/var/../etc/passwd"); err == nil {
		t.Error("ValidatePath(traversal) = nil, want error")
	}
}

func TestCheckPathWritable(t *testing.T) {
	t.Parallel()

	if err := CheckPathWritable(t.TempDir()); err != nil {
		t.Errorf("CheckPathWritable(tempdir) = %v, want nil", err)
	}

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CheckPathWritable(filepath.Join(blocker, "sub")); err == nil {
		t.Error("CheckPathWritable(under a regular file) = nil, want error")
	}
}

func TestDarkenColor(t *testing.T) {
	t.Parallel()

	if got := DarkenColor("#FFFFFF", 10); got != "#E5E5E5" {
		t.Errorf("DarkenColor(#FFFFFF, 10) = %q, want #E5E5E5", got)
	}
	if got := DarkenColor("not-a-color", 10); got != "not-a-color" {
		t.Errorf("DarkenColor(invalid) = %q, want input unchanged", got)
	}
}

func TestIsConfigured(t *testing.T) {
	t.Parallel()

	if !IsConfigured("a", "b") {
		t.Error("IsConfigured(a, b) = false, want true")
	}
	if IsConfigured("a", "") {
		t.Error("IsConfigured(a, empty) = true, want false")
	}
	if !IsConfigured() {
		t.Error("IsConfigured() = false, want true")
	}
}
