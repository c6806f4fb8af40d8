package ui

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/joinme/internal/ota"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{174992, "170.9 KiB"},
		{3 * 1024 * 1024, "3.0 MiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLinePrinter(t *testing.T) {
	var buf bytes.Buffer
	lp := NewLinePrinter(&buf, "firmware")

	lp.Progress(ota.Progress{Written: 10, Expected: 1000, Fraction: 0.01})
	lp.Progress(ota.Progress{Written: 11, Expected: 1000, Fraction: 0.011}) // same percent
	lp.Progress(ota.Progress{Written: 1000, Expected: 1000, Fraction: 1})

	out := buf.String()
	if n := strings.Count(out, "\r"); n != 2 {
		t.Errorf("expected 2 line rewrites, got %d in %q", n, out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("expected trailing newline once done, got %q", out)
	}
	if !strings.Contains(out, "100%") {
		t.Errorf("expected final percentage in %q", out)
	}
}

func TestDownloadBarRender(t *testing.T) {
	bar := NewDownloadBar("Downloading firmware").SetWidth(80)
	bar.Update(ota.Progress{Written: 2048, Expected: 4096, Fraction: 0.5})

	out := bar.Render()
	for _, want := range []string{"Downloading firmware...", "50%", "2.0 KiB / 4.0 KiB"} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestHeaderParamOrder(t *testing.T) {
	h := NewHeader("firmware update", "joinme update",
		Param{Key: "Repository", Value: "owner/repo"},
		Param{Key: "Current", Value: "3"},
	).SetWidth(80)

	out := h.Render()
	if !strings.Contains(out, "FIRMWARE UPDATE") {
		t.Errorf("expected upper-cased title:\n%s", out)
	}
	repo := strings.Index(out, "owner/repo")
	cur := strings.Index(out, "Current")
	if repo < 0 || cur < 0 || repo > cur {
		t.Errorf("params out of order:\n%s", out)
	}
}

func TestNewUpdateResult(t *testing.T) {
	manifest := ota.Manifest{Current: 3, Remote: 4}
	tests := []struct {
		name     string
		res      ota.Result
		err      error
		wantType ResultType
		wantText string
		tips     bool
	}{
		{"updated", ota.Result{Outcome: ota.OutcomeUpdated, Manifest: manifest, Written: 200000}, nil, ResultSuccess, "Firmware 4 installed", false},
		{"up to date", ota.Result{Outcome: ota.OutcomeUpToDate, Manifest: ota.Manifest{Current: 4, Remote: 4}}, nil, ResultSuccess, "up to date", false},
		{"restart failed", ota.Result{Outcome: ota.OutcomeUpdated, Manifest: manifest}, errors.New("exec failed"), ResultWarning, "restart failed", false},
		{"busy", ota.Result{}, ota.ErrBusy, ResultWarning, "already running", false},
		{"check failed", ota.Result{Outcome: ota.OutcomeCheckFailed, Manifest: ota.Manifest{Current: 3, Remote: -1}},
			&ota.UpdateError{Outcome: ota.OutcomeCheckFailed, Message: "bad version"}, ResultFailure, "published version", true},
		{"incomplete", ota.Result{Outcome: ota.OutcomeWriteIncomplete, Manifest: manifest},
			fmt.Errorf("wrapped: %w", &ota.UpdateError{Outcome: ota.OutcomeWriteIncomplete, Message: "short"}), ResultFailure, "ended early", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewUpdateResult(tt.res, tt.err)
			if r.Type != tt.wantType {
				t.Errorf("type = %d, want %d", r.Type, tt.wantType)
			}
			if !strings.Contains(r.Title, tt.wantText) {
				t.Errorf("title %q does not contain %q", r.Title, tt.wantText)
			}
			if tt.tips != (len(r.Troubleshooting) > 0) {
				t.Errorf("troubleshooting = %v", r.Troubleshooting)
			}
			if out := r.SetWidth(80).Render(); !strings.Contains(out, r.Title) {
				t.Errorf("render missing title:\n%s", out)
			}
		})
	}
}

func TestUpdateModel(t *testing.T) {
	m := NewUpdateModel(NewHeader("firmware update", "joinme update"))

	if !strings.Contains(m.View(), "Checking for updates") {
		t.Errorf("expected checking line before progress:\n%s", m.View())
	}

	next, cmd := m.Update(ProgressMsg{Written: 100, Expected: 400, Fraction: 0.25})
	m = next.(UpdateModel)
	if cmd != nil {
		t.Error("progress should not produce a command")
	}
	if !strings.Contains(m.View(), "25%") {
		t.Errorf("expected bar at 25%%:\n%s", m.View())
	}

	res := ota.Result{Outcome: ota.OutcomeUpdated, Manifest: ota.Manifest{Current: 1, Remote: 2}, Written: 400}
	next, cmd = m.Update(DoneMsg{Result: res})
	m = next.(UpdateModel)
	if cmd == nil {
		t.Fatal("done should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if !m.Done() {
		t.Error("model should be done")
	}
	got, err := m.Outcome()
	if err != nil || got.Outcome != ota.OutcomeUpdated {
		t.Errorf("Outcome() = %v, %v", got, err)
	}
	if !strings.Contains(m.View(), "Firmware 2 installed") {
		t.Errorf("expected result box:\n%s", m.View())
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"yes\n", true},
		{"  YES \n", true},
		{"no\n", false},
		{"", false},
		{"yes", true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := ConfirmFlashUpdate(strings.NewReader(tt.input), &out, "/var/lib/joinme/flash"); got != tt.want {
			t.Errorf("input %q: got %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "FIRMWARE UPDATE") {
			t.Errorf("input %q: warning box not printed", tt.input)
		}
	}
}
