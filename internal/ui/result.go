package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/joinme/internal/ota"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Result is an outcome box printed after an operation finishes.
type Result struct {
	Type            ResultType // Success, failure, or warning
	Title           string     // e.g., "Firmware 7 installed"
	Details         []Param    // Key-value details to display
	Error           error      // Error (for failure results)
	Troubleshooting []string   // Troubleshooting tips (for failure results)
	Width           int        // Terminal width
}

// NewUpdateResult builds the box for the return values of
// ota.Updater.CheckAndUpdate.
func NewUpdateResult(res ota.Result, err error) *Result {
	r := &Result{Width: GetTerminalWidth()}

	if errors.Is(err, ota.ErrBusy) {
		r.Type = ResultWarning
		r.Title = "Another update is already running"
		return r
	}

	r.AddDetail("Current", strconv.Itoa(res.Manifest.Current))
	if res.Manifest.Remote >= 0 {
		r.AddDetail("Published", strconv.Itoa(res.Manifest.Remote))
	}
	if res.Written > 0 {
		r.AddDetail("Written", FormatBytes(res.Written))
	}

	switch {
	case err == nil && res.Outcome == ota.OutcomeUpdated:
		r.Type = ResultSuccess
		r.Title = fmt.Sprintf("Firmware %d installed", res.Manifest.Remote)
	case err == nil && res.Outcome == ota.OutcomeUpToDate:
		r.Type = ResultSuccess
		r.Title = "Firmware is up to date"
	case res.Outcome == ota.OutcomeUpdated:
		// flashed, but the restart did not happen
		r.Type = ResultWarning
		r.Title = fmt.Sprintf("Firmware %d installed, restart failed", res.Manifest.Remote)
		r.Error = err
	default:
		r.Type = ResultFailure
		r.Error = err
		outcome, ok := ota.OutcomeOf(err)
		if !ok {
			outcome = res.Outcome
		}
		r.Title = outcomeTitle(outcome)
		r.Troubleshooting = outcomeTips(outcome)
	}
	return r
}

func outcomeTitle(o ota.Outcome) string {
	switch o {
	case ota.OutcomeCheckFailed:
		return "Could not read the published version"
	case ota.OutcomeImageFetchFailed:
		return "Could not download the firmware image"
	case ota.OutcomeImageTooSmall:
		return "Firmware image rejected"
	case ota.OutcomeBeginFailed:
		return "Flash refused the update"
	case ota.OutcomeWriteIncomplete:
		return "Download ended early"
	case ota.OutcomeFinalizeFailed:
		return "Flash could not finalize the image"
	default:
		return "Update failed"
	}
}

func outcomeTips(o ota.Outcome) []string {
	switch o {
	case ota.OutcomeCheckFailed:
		return []string{
			"Check the repository id and branch in the ota section of the config",
			"A private repository needs an access token",
			"The version file must contain a single integer",
		}
	case ota.OutcomeImageFetchFailed:
		return []string{
			"The version file names an image that does not exist",
			"Check network connectivity to the repository host",
		}
	case ota.OutcomeImageTooSmall:
		return []string{
			"The server did not declare a Content-Length, or the image is below ota.min_image_size",
		}
	case ota.OutcomeBeginFailed, ota.OutcomeFinalizeFailed:
		return []string{
			"Check free space and permissions in the flash directory",
			"Raise flash.max_image_size if the image is larger than the slot",
		}
	case ota.OutcomeWriteIncomplete:
		return []string{
			"The connection dropped during the download; the running image is untouched",
			"Retry the update",
		}
	default:
		return nil
	}
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail appends a detail key-value pair
func (r *Result) AddDetail(key, value string) *Result {
	r.Details = append(r.Details, Param{Key: key, Value: value})
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	width := clampWidth(r.Width)

	var (
		color lipgloss.Color
		title string
	)
	switch r.Type {
	case ResultFailure:
		color = ErrorColor
		title = ErrorTitleStyle.Render(fmt.Sprintf("   %s  FAILED  ─  %s", FailureMarker, r.Title))
	case ResultWarning:
		color = WarningColor
		title = WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, r.Title))
	default:
		color = SuccessColor
		title = SuccessTitleStyle.Render(fmt.Sprintf("   %s  SUCCESS  ─  %s", SuccessMarker, r.Title))
	}

	lines := []string{"", title, ""}

	for _, d := range r.Details {
		keyStyled := ResultKeyStyle.Render(fmt.Sprintf("   %s:", d.Key))
		lines = append(lines, keyStyled+" "+ResultValueStyle.Render(d.Value))
	}
	if len(r.Details) > 0 {
		lines = append(lines, "")
	}

	if r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+r.Error.Error()), "")
	}

	if len(r.Troubleshooting) > 0 {
		lines = append(lines, r.renderTroubleshootingBox(width), "")
	}

	return ResultBoxStyle(width, color).Render(strings.Join(lines, "\n"))
}

// renderTroubleshootingBox renders the inner troubleshooting box
func (r *Result) renderTroubleshootingBox(width int) string {
	lines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
	for _, tip := range r.Troubleshooting {
		lines = append(lines, TroubleshootingItemStyle.Render("  • "+tip))
	}

	innerWidth := width - 12 // Indent within outer box
	if innerWidth < 40 {
		innerWidth = 40
	}

	return TroubleshootingBoxStyle(innerWidth + 8).
		MarginLeft(3).
		Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}
