package status

import (
	"strings"
	"testing"
)

func TestView(t *testing.T) {
	tests := []struct {
		name  string
		model Model
		want  []string
	}{
		{
			name:  "connecting",
			model: New(),
			want:  []string{"Connecting...", "uninitialized"},
		},
		{
			name:  "reconnecting",
			model: Model{Attempt: 3, State: "closed"},
			want:  []string{"Reconnecting (3)", "closed"},
		},
		{
			name: "ready session",
			model: Model{
				Connected: true,
				SessionID: "sidebar-term-1",
				State:     "ready",
				Rows:      15,
				Cols:      80,
				Width:     100,
			},
			want: []string{"Connected", "ready", "sidebar-term-1", "15x80"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.model.View()
			for _, s := range tt.want {
				if !strings.Contains(v, s) {
					t.Errorf("view missing %q:\n%s", s, v)
				}
			}
		})
	}
}

func TestSetSession(t *testing.T) {
	m := New()
	m.SetSession("sidebar-term-x", "failed")
	if m.SessionID != "sidebar-term-x" || m.State != "failed" {
		t.Errorf("SetSession: %+v", m)
	}
}
