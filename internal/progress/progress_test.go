package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewIndicator(t *testing.T) {
	buf := &bytes.Buffer{}
	ind := NewIndicator(Config{
		Writer:      buf,
		ShowSpinner: true,
		IsCI:        false,
	})

	if ind == nil {
		t.Fatal("Expected indicator to be created")
	}

	if ind.writer != buf {
		t.Error("Writer not set correctly")
	}
}

func TestNewIndicatorCIMode(t *testing.T) {
	buf := &bytes.Buffer{}
	ind := NewIndicator(Config{
		Writer:      buf,
		ShowSpinner: true,
		IsCI:        true,
	})

	if ind.showSpinner {
		t.Error("Spinner should be disabled in CI mode")
	}

	if !ind.isCI {
		t.Error("IsCI should be true")
	}
}

func TestFixtureLines(t *testing.T) {
	buf := &bytes.Buffer{}
	ind := NewIndicator(Config{Writer: buf, IsCI: true})
	ind.SetTotal(2)

	ind.Fixture("root::A.java", "equivalent", true)
	ind.Fixture("root::B.java", "divergent", false)

	want := "[1/2] ✓ root::A.java equivalent\n[2/2] ✗ root::B.java divergent\n"
	if got := buf.String(); got != want {
		t.Errorf("unexpected output:\n%q\nwant\n%q", got, want)
	}

	done, passed, failed := ind.Counts()
	if done != 2 || passed != 1 || failed != 1 {
		t.Errorf("Counts() = %d, %d, %d", done, passed, failed)
	}
}

func TestFixtureLineWithoutTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	ind := NewIndicator(Config{Writer: buf, IsCI: true})

	ind.Fixture("root::A.java", "equivalent", true)

	if got := buf.String(); got != "[1] ✓ root::A.java equivalent\n" {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestSpinnerModeRendersBar(t *testing.T) {
	buf := &syncBuffer{}
	ind := NewIndicator(Config{Writer: buf, ShowSpinner: true})
	if !ind.showSpinner {
		t.Skip("CI environment disables the spinner")
	}
	ind.SetTotal(4)
	ind.Start()
	ind.Fixture("root::A.java", "equivalent", true)
	time.Sleep(250 * time.Millisecond)
	ind.Stop()
	ind.Stop()

	out := buf.String()
	if !strings.Contains(out, "1/4 fixtures") {
		t.Errorf("expected progress line, got %q", out)
	}
	if strings.Contains(out, "root::A.java") {
		t.Error("spinner mode should not print per-fixture lines")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{65 * time.Second, "1m5s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h2m3s"},
		{400 * time.Millisecond, "0s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
