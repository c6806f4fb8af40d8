package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConfirmPhrase is what the user must type to accept a flash write
const ConfirmPhrase = "yes"

// Confirm displays a warning box on out and reads one line from in. It
// returns true only if the line is phrase, ignoring surrounding space and
// case.
func Confirm(in io.Reader, out io.Writer, title string, warnings []string, phrase string) bool {
	width := GetTerminalWidth()

	lines := []string{
		"",
		WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, title)),
		"",
	}
	bulletStyle := lipgloss.NewStyle().Foreground(TextColor)
	for _, warning := range warnings {
		lines = append(lines, bulletStyle.Render("   • "+warning))
	}
	lines = append(lines, "")

	box := ResultBoxStyle(width, WarningColor).Render(strings.Join(lines, "\n"))
	_, _ = fmt.Fprintln(out, box)
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprint(out, WarningTitleStyle.Render(fmt.Sprintf("To proceed, type %q and press Enter: ", phrase)))

	input, err := bufio.NewReader(in).ReadString('\n')
	_, _ = fmt.Fprintln(out)
	if err != nil && input == "" {
		return false
	}

	if strings.EqualFold(strings.TrimSpace(input), phrase) {
		return true
	}

	_, _ = fmt.Fprintln(out, lipgloss.NewStyle().Foreground(MutedColor).Render("  Operation cancelled."))
	return false
}

// ConfirmFlashUpdate asks before an update writes a new image into dir
func ConfirmFlashUpdate(in io.Reader, out io.Writer, dir string) bool {
	return Confirm(in, out, "FIRMWARE UPDATE",
		[]string{
			"A newer image will be written to the inactive slot in " + dir,
			"The process restarts into the new image when the write completes",
			"Do not interrupt the update once the download has started",
		},
		ConfirmPhrase,
	)
}
