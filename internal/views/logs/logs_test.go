package logs

import (
	"strconv"
	"strings"
	"testing"
)

func TestSetFrontend(t *testing.T) {
	m := New()
	m.SetFrontend("10:00:00 INFO bridge: connecting terminal\n10:00:01 DEBU bridge: state\n")
	if len(m.Frontend) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(m.Frontend))
	}
	if m.Frontend[0] != "10:00:00 INFO bridge: connecting terminal" {
		t.Errorf("line 0 = %q", m.Frontend[0])
	}
}

func TestMaxLines(t *testing.T) {
	var b strings.Builder
	for i := 0; i < maxLines+50; i++ {
		b.WriteString("line " + strconv.Itoa(i) + "\n")
	}
	m := New()
	m.SetFrontend(b.String())
	if len(m.Frontend) != maxLines {
		t.Errorf("expected %d lines, got %d", maxLines, len(m.Frontend))
	}
	if last := m.Frontend[len(m.Frontend)-1]; last != "line "+strconv.Itoa(maxLines+49) {
		t.Errorf("newest line dropped, last = %q", last)
	}
}

func TestScrollUpDown(t *testing.T) {
	m := New()
	m.SetFrontend(strings.Repeat("msg\n", 20))

	m.ScrollUp(5)
	if m.Offset != 5 {
		t.Errorf("expected offset 5, got %d", m.Offset)
	}

	m.ScrollDown(3)
	if m.Offset != 2 {
		t.Errorf("expected offset 2, got %d", m.Offset)
	}

	m.ScrollDown(10)
	if m.Offset != 0 {
		t.Errorf("expected offset 0, got %d", m.Offset)
	}

	m.ScrollUp(100)
	if m.Offset != 19 { // max is len-1
		t.Errorf("expected offset 19, got %d", m.Offset)
	}
}

func TestToggle(t *testing.T) {
	m := New()
	m.SetFrontend("front\n")
	m.SetBackend("back one\nback two\n")
	m.ScrollUp(1)

	m.Toggle()
	if m.Source != Backend || m.Offset != 0 {
		t.Fatalf("after Toggle source = %v offset = %d", m.Source, m.Offset)
	}
	if got := m.Lines(); len(got) != 2 || got[1] != "back two" {
		t.Errorf("backend lines = %q", got)
	}

	m.Toggle()
	if m.Source != Frontend {
		t.Errorf("second Toggle source = %v", m.Source)
	}
}

func TestViewEmpty(t *testing.T) {
	m := New()
	v := m.View(80, 20)
	if !strings.Contains(v, "No log lines") {
		t.Error("empty view should show 'No log lines' message")
	}
	if !strings.Contains(v, "FRONTEND LOG") {
		t.Error("view should be titled FRONTEND LOG")
	}
}

func TestViewWithLines(t *testing.T) {
	m := New()
	m.SetFrontend("10:00:00 INFO bridge: terminal ready\n10:00:01 ERRO bridge: unsubscribe failed\n")
	v := m.View(100, 20)
	if !strings.Contains(v, "terminal ready") || !strings.Contains(v, "unsubscribe failed") {
		t.Errorf("view missing lines:\n%s", v)
	}
}

func TestViewBackendError(t *testing.T) {
	m := New()
	m.Toggle()
	m.BackendErr = "get_log: not connected"
	v := m.View(80, 20)
	if !strings.Contains(v, "not connected") {
		t.Errorf("view should show fetch error:\n%s", v)
	}

	m.SetBackend("ok\n")
	if m.BackendErr != "" {
		t.Error("SetBackend should clear the fetch error")
	}
}

func TestLevelOf(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"10:00:00 INFO bridge: ready", "INFO"},
		{"10:00:00 WARN server: slow client", "WARN"},
		{"ERRO plain", "ERRO"},
		{"no level here at all", ""},
	}
	for _, tt := range tests {
		if got := levelOf(tt.line); got != tt.want {
			t.Errorf("levelOf(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}
