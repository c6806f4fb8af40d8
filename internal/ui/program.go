package ui

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/joinme/internal/ota"
)

// ProgressMsg carries an image write snapshot into an UpdateModel
type ProgressMsg ota.Progress

// DoneMsg ends an UpdateModel with the update's return values
type DoneMsg struct {
	Result ota.Result
	Err    error
}

// UpdateFunc runs an update, reporting progress to obs
type UpdateFunc func(obs ota.ProgressObserver) (ota.Result, error)

// UpdateModel is a Bubble Tea model showing a firmware update: a header, a
// checking line until the first image chunk arrives, the download bar, and
// finally the result box. It quits on DoneMsg.
type UpdateModel struct {
	header      *Header
	bar         *DownloadBar
	downloading bool
	done        bool
	result      ota.Result
	err         error
}

// NewUpdateModel creates a model for the given header
func NewUpdateModel(header *Header) UpdateModel {
	return UpdateModel{
		header: header,
		bar:    NewDownloadBar("Downloading firmware"),
	}
}

// Init implements tea.Model
func (m UpdateModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m UpdateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		width := clampWidth(msg.Width)
		m.bar.SetWidth(width)
		if m.header != nil {
			m.header.SetWidth(width)
		}
	case ProgressMsg:
		m.downloading = true
		m.bar.Update(ota.Progress(msg))
	case DoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model
func (m UpdateModel) View() string {
	var s string
	if m.header != nil {
		s = m.header.Render() + "\n\n"
	}

	switch {
	case m.done:
		if m.downloading {
			s += m.bar.Render() + "\n"
		}
		s += NewUpdateResult(m.result, m.err).SetWidth(m.bar.Width).Render() + "\n"
	case m.downloading:
		s += m.bar.Render()
	default:
		s += ProgressLabelStyle.Render("Checking for updates...") + "\n"
	}
	return s
}

// Done reports whether the update has finished
func (m UpdateModel) Done() bool {
	return m.done
}

// Outcome returns the update's return values once Done is true
func (m UpdateModel) Outcome() (ota.Result, error) {
	return m.result, m.err
}

// RunUpdate runs fn on its own goroutine while rendering an UpdateModel to
// out. It returns fn's results.
func RunUpdate(out io.Writer, header *Header, fn UpdateFunc) (ota.Result, error) {
	if out == nil {
		out = os.Stdout
	}

	p := tea.NewProgram(NewUpdateModel(header), tea.WithOutput(out), tea.WithInput(nil))

	go func() {
		res, err := fn(ota.ObserverFunc(func(pr ota.Progress) {
			p.Send(ProgressMsg(pr))
		}))
		p.Send(DoneMsg{Result: res, Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return ota.Result{}, fmt.Errorf("render update: %w", err)
	}
	m, ok := final.(UpdateModel)
	if !ok || !m.Done() {
		return ota.Result{}, fmt.Errorf("update interrupted")
	}
	return m.Outcome()
}

// Printer writes UI components to a writer without Bubble Tea.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Print writes content to the output
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(h *Header) {
	p.Print(h.SetWidth(p.width).Render())
	p.Newline()
}

// PrintResult prints a result box
func (p *Printer) PrintResult(r *Result) {
	p.Print(r.SetWidth(p.width).Render())
	p.Newline()
}
