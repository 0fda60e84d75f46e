// Package tui provides the terminal upload form for midi2wav
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-kit/log"
	"github.com/james-see/midi2wav/pkg/midiinfo"
	"github.com/james-see/midi2wav/pkg/ui"
	"github.com/james-see/midi2wav/pkg/upload"
)

// Acid-inspired color scheme
var (
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")
	dimGray    = lipgloss.Color("#666666")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			Width(14)

	focusedLabelStyle = labelStyle.
				Foreground(acidGreen).
				Bold(true)

	buttonStyle = lipgloss.NewStyle().
			Foreground(darkGray).
			Background(acidGreen).
			Bold(true).
			Padding(0, 2)

	focusedButtonStyle = buttonStyle.
				Background(acidYellow)

	disabledButtonStyle = lipgloss.NewStyle().
				Foreground(dimGray).
				Background(darkGray).
				Padding(0, 2)

	statusStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(dimGray).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(1, 2)

	alertStyle = boxStyle.
			BorderForeground(lipgloss.Color("#FF0000"))
)

// field identifies the focused form control
type field int

const (
	fieldFile field = iota
	fieldName
	fieldWaveform
	fieldSubmit
	fieldCount
)

// Downloader fetches a converted file. *upload.Client satisfies it.
type Downloader interface {
	Download(ctx context.Context, url, dir string) (string, error)
}

// Options configures the form
type Options struct {
	Submitter   ui.Submitter
	Downloader  Downloader
	DownloadDir string
	StartDir    string
	Logger      log.Logger
}

// page is the ui.View the controller draws on
type page struct {
	submitEnabled bool
	submitVisible bool
	loading       bool
	downloadURL   string
	alert         string
}

func (p *page) SetSubmitEnabled(enabled bool) { p.submitEnabled = enabled }
func (p *page) SetSubmitVisible(visible bool) { p.submitVisible = visible }
func (p *page) SetLoading(loading bool)       { p.loading = loading }
func (p *page) ShowDownload(url string)       { p.downloadURL = url }
func (p *page) HideDownload()                 { p.downloadURL = "" }
func (p *page) Alert(message string)          { p.alert = message }

// Model represents the TUI model
type Model struct {
	page       *page
	controller *ui.Controller
	downloader Downloader
	dir        string

	focus      field
	picking    bool
	filePicker filepicker.Model
	nameInput  textinput.Model
	spinner    spinner.Model

	summary     *midiinfo.Summary
	summaryErr  error
	sending     upload.Request
	downloading bool
	downloaded  string
	downloadErr error

	width  int
	height int
}

// uploadDoneMsg carries the outcome of a pending upload
type uploadDoneMsg struct {
	result upload.Result
	err    error
}

// downloadDoneMsg signals a finished download
type downloadDoneMsg struct {
	path string
	err  error
}

// New creates a new TUI model
func New(opts Options) Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".mid", ".midi"}
	fp.CurrentDirectory = opts.StartDir
	if fp.CurrentDirectory == "" {
		fp.CurrentDirectory, _ = os.Getwd()
	}

	ti := textinput.New()
	ti.Placeholder = "output name (defaults to the file name)"
	ti.CharLimit = 64
	ti.Width = 40

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(acidGreen)

	dir := opts.DownloadDir
	if dir == "" {
		dir = "."
	}

	p := &page{}
	return Model{
		page:       p,
		controller: ui.NewController(p, opts.Submitter, opts.Logger),
		downloader: opts.Downloader,
		dir:        dir,
		filePicker: fp,
		nameInput:  ti,
		spinner:    s,
	}
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == "ctrl+c" {
		m.controller.Cancel()
		return m, tea.Quit
	}

	// the file picker needs every message while it is open
	if m.picking {
		return m.updatePicker(msg)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 12)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case uploadDoneMsg:
		m.controller.Finish(msg.result, msg.err)
		m.downloaded = ""
		m.downloadErr = nil
		return m, nil

	case downloadDoneMsg:
		m.downloading = false
		m.downloaded = msg.path
		m.downloadErr = msg.err
		return m, nil

	case tea.KeyMsg:
		switch {
		case m.page.alert != "":
			return m.updateAlert(msg)
		case m.controller.State() == ui.StateSubmitting:
			return m.updateSubmitting(msg)
		case m.controller.State() == ui.StateDownloadReady:
			return m.updateDownload(msg)
		default:
			return m.updateForm(msg)
		}
	}

	if m.focus == fieldName {
		var cmd tea.Cmd
		m.nameInput, cmd = m.nameInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == "esc" {
		m.picking = false
		return m, nil
	}

	var cmd tea.Cmd
	m.filePicker, cmd = m.filePicker.Update(msg)

	if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
		m.picking = false
		m.selectFile(path)
		return m, nil
	}
	return m, cmd
}

func (m *Model) selectFile(path string) {
	m.controller.SelectFile(path)
	m.summary, m.summaryErr = midiinfo.InspectFile(path)
	m.focus = fieldSubmit
	m.nameInput.Blur()
}

func (m Model) updateAlert(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc", " ":
		m.page.alert = ""
		m.controller.AcknowledgeFailure()
	}
	return m, nil
}

func (m Model) updateSubmitting(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+x" {
		m.controller.Cancel()
	}
	return m, nil
}

func (m Model) updateDownload(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "d", "enter":
		if m.downloading || m.downloader == nil {
			return m, nil
		}
		m.downloading = true
		m.downloadErr = nil
		return m, m.performDownload(m.controller.DownloadURL())
	case "esc", "n":
		m.controller.DismissDownload()
		m.downloaded = ""
		m.downloadErr = nil
		return m, nil
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "down":
		return m.setFocus((m.focus + 1) % fieldCount)
	case "shift+tab", "up":
		return m.setFocus((m.focus + fieldCount - 1) % fieldCount)
	}

	switch m.focus {
	case fieldFile:
		switch msg.String() {
		case "enter", " ":
			m.picking = true
			return m, m.filePicker.Init()
		case "backspace", "delete":
			m.controller.ClearFile()
			m.summary, m.summaryErr = nil, nil
		case "q":
			return m, tea.Quit
		}

	case fieldName:
		if msg.String() == "enter" {
			return m.setFocus(fieldWaveform)
		}
		var cmd tea.Cmd
		m.nameInput, cmd = m.nameInput.Update(msg)
		m.controller.SetOutputName(m.nameInput.Value())
		return m, cmd

	case fieldWaveform:
		switch msg.String() {
		case "left", "h":
			_ = m.controller.SetWaveform(cycleWaveform(m.controller.Waveform(), -1))
		case "right", "l", " ":
			_ = m.controller.SetWaveform(cycleWaveform(m.controller.Waveform(), 1))
		case "enter":
			return m.setFocus(fieldSubmit)
		case "q":
			return m, tea.Quit
		}

	case fieldSubmit:
		switch msg.String() {
		case "enter", " ":
			return m.submit()
		case "q":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) setFocus(f field) (tea.Model, tea.Cmd) {
	m.focus = f
	if f == fieldName {
		return m, m.nameInput.Focus()
	}
	m.nameInput.Blur()
	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if !m.page.submitEnabled {
		return m, nil
	}
	pending, err := m.controller.BeginSubmit(context.Background())
	if err != nil {
		m.page.alert = err.Error()
		return m, nil
	}
	m.sending = pending.Request()
	return m, tea.Batch(m.spinner.Tick, performUpload(pending))
}

func performUpload(p *ui.Pending) tea.Cmd {
	return func() tea.Msg {
		result, err := p.Run()
		return uploadDoneMsg{result: result, err: err}
	}
}

func (m Model) performDownload(url string) tea.Cmd {
	downloader, dir := m.downloader, m.dir
	return func() tea.Msg {
		path, err := downloader.Download(context.Background(), url, dir)
		return downloadDoneMsg{path: path, err: err}
	}
}

func cycleWaveform(current upload.Waveform, delta int) upload.Waveform {
	n := len(upload.Waveforms)
	for i, w := range upload.Waveforms {
		if w == current {
			return upload.Waveforms[(i+delta+n)%n]
		}
	}
	return upload.DefaultWaveform
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch {
	case m.picking:
		s.WriteString(m.viewFilePicker())
	case m.page.alert != "":
		s.WriteString(m.viewAlert())
	default:
		s.WriteString(m.viewForm())
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render(m.help()))

	return s.String()
}

func (m Model) label(f field, text string) string {
	if m.focus == f {
		return focusedLabelStyle.Render("▸ " + text)
	}
	return labelStyle.Render("  " + text)
}

func (m Model) viewForm() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" MIDI → WAV "))
	s.WriteString("\n\n")

	file := "(none)"
	if f := m.controller.File(); f != "" {
		file = filepath.Base(f)
	}
	s.WriteString(m.label(fieldFile, "MIDI file") + file + "\n")
	s.WriteString(m.label(fieldName, "Output name") + m.nameInput.View() + "\n")
	s.WriteString(m.label(fieldWaveform, "Waveform") + viewWaveforms(m.controller.Waveform()) + "\n")

	if m.summary != nil {
		s.WriteString(statusStyle.Render(fmt.Sprintf("  %d notes • %.0f bpm • %s",
			len(m.summary.Notes), m.summary.BPM(), m.summary.Duration().Round(10*time.Millisecond))))
		s.WriteString("\n")
	} else if m.summaryErr != nil {
		s.WriteString(statusStyle.Render("  (could not read MIDI details)"))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	if m.page.submitVisible {
		s.WriteString(m.viewSubmit())
	}
	if m.page.downloadURL != "" {
		s.WriteString(m.viewDownload())
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewSubmit() string {
	switch {
	case m.page.loading:
		return disabledButtonStyle.Render(fmt.Sprintf("%s Uploading %s as %s.wav (%s)",
			m.spinner.View(), m.sending.FileName, m.sending.OutputName, m.sending.Waveform))
	case !m.page.submitEnabled:
		return disabledButtonStyle.Render("⇧ Upload")
	case m.focus == fieldSubmit:
		return focusedButtonStyle.Render("⇧ Upload")
	default:
		return buttonStyle.Render("⇧ Upload")
	}
}

func (m Model) viewDownload() string {
	var s strings.Builder
	s.WriteString(successStyle.Render("✓ Conversion complete!"))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("Download: %s\n", m.page.downloadURL))

	switch {
	case m.downloading:
		s.WriteString(statusStyle.Render(fmt.Sprintf("%s Downloading...", m.spinner.View())))
	case m.downloadErr != nil:
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Download failed: %s", m.downloadErr.Error())))
	case m.downloaded != "":
		s.WriteString(statusStyle.Render(fmt.Sprintf("Saved to %s", m.downloaded)))
	}
	return s.String()
}

func viewWaveforms(selected upload.Waveform) string {
	parts := make([]string, 0, len(upload.Waveforms))
	for _, w := range upload.Waveforms {
		if w == selected {
			parts = append(parts, successStyle.Render("["+string(w)+"]"))
		} else {
			parts = append(parts, lipgloss.NewStyle().Foreground(silverGray).Render(" "+string(w)+" "))
		}
	}
	return strings.Join(parts, " ")
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT MIDI FILE "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to form"))

	return s.String()
}

func (m Model) viewAlert() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" ERROR "))
	s.WriteString("\n\n")
	s.WriteString(errorStyle.Render("✗ " + m.page.alert))
	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Press enter to continue"))

	return alertStyle.Render(s.String())
}

func (m Model) help() string {
	switch {
	case m.picking:
		return "↑/↓: navigate • enter: select • esc: back"
	case m.page.alert != "":
		return "enter: dismiss • ctrl+c: quit"
	case m.controller.State() == ui.StateSubmitting:
		return "ctrl+x: cancel upload • ctrl+c: quit"
	case m.controller.State() == ui.StateDownloadReady:
		return "d: download • esc: new upload • q: quit"
	default:
		return "tab: next field • enter: select • ←/→: waveform • q: quit"
	}
}

func asciiLogo() string {
	logo := `
  __  __ ___ ____ ___ ____  __        ___ __     __
 |  \/  |_ _|  _ \_ _|___ \ \ \      / / \\ \   / /
 | |\/| || || | | | |  __) | \ \ /\ / / _ \\ \ / /
 | |  | || || |_| | | / __/   \ V  V / ___ \\ V /
 |_|  |_|___|____/___|_____|   \_/\_/_/   \_\\_/
`
	return lipgloss.NewStyle().Foreground(acidGreen).Render(logo)
}

// Run starts the TUI application
func Run(opts Options) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
