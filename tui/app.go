package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"whisperpad/engine"
	"whisperpad/reflow"
	"whisperpad/worker"
)

// maxProgressLines bounds the engine output kept in the result surface
const maxProgressLines = 2000

type focus int

const (
	focusMain focus = iota
	focusPicker
	focusWidth
	focusSave
)

// Tab selects which surface is shown
type Tab int

const (
	TabResult Tab = iota
	TabLog
)

// Options configures a new Model
type Options struct {
	// Request is the template for every run; FilePath and Model are filled in
	Request engine.Request

	// Format holds the initial output settings
	Format reflow.FormatConfig

	// File preselects a media file
	File string

	// Models are offered by the model cycle key; Request.Model selects the first
	Models []string

	// Clipboard overrides the system clipboard writer
	Clipboard ClipboardFunc
}

// Model is the Bubble Tea model for the whisperpad main screen
type Model struct {
	worker  *worker.Worker
	request engine.Request

	models     []string
	modelIndex int

	// UI Components
	filepicker filepicker.Model
	widthInput textinput.Model
	saveInput  textinput.Model
	spinner    spinner.Model
	progress   progress.Model
	logs       *LogFeed
	output     viewport.Model

	focus focus
	tab   Tab

	// Output settings, snapshotted into a FormatConfig whenever a render happens
	widthText  string
	mode       reflow.Mode
	timestamps bool

	file     string
	fileSize int64

	// Result surface: engine output while running, the rendered result after
	progressLines []string
	outputText    string
	last          *engine.Result
	lastContext   reflow.RenderContext
	runStarted    time.Time
	hasFraction   bool

	noticeTitle string
	notice      string
	noticeErr   bool

	clipboard ClipboardFunc

	width    int
	height   int
	quitting bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewModel creates the main screen around w
func NewModel(w *worker.Worker, opts Options) Model {
	fp := filepicker.New()
	fp.AllowedTypes = engine.MediaExtensions()
	fp.ShowHidden = false
	fp.ShowSize = true
	fp.Height = 12
	if cwd, err := os.Getwd(); err == nil {
		fp.CurrentDirectory = cwd
	}

	wi := textinput.New()
	wi.Placeholder = strconv.Itoa(reflow.DefaultLineLength)
	wi.CharLimit = 4
	wi.Width = 6

	si := textinput.New()
	si.Placeholder = "transcript.txt"
	si.CharLimit = 512
	si.Width = 50

	s := spinner.New()
	s.Spinner = spinner.Spinner{Frames: SpinnerFrames, FPS: time.Second / 8}
	s.Style = lipgloss.NewStyle().Foreground(ColorAccent)

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(50),
	)

	models := opts.Models
	if len(models) == 0 {
		models = engine.Models
	}
	modelIndex := 0
	for i, name := range models {
		if name == opts.Request.Model {
			modelIndex = i
		}
	}

	format := opts.Format
	if format.Mode == "" {
		format = reflow.DefaultFormatConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := Model{
		worker:     w,
		request:    opts.Request,
		models:     models,
		modelIndex: modelIndex,
		filepicker: fp,
		widthInput: wi,
		saveInput:  si,
		spinner:    s,
		progress:   p,
		logs:       NewLogFeed(76, 12),
		output:     viewport.New(76, 12),
		widthText:  strconv.Itoa(format.Width()),
		mode:       format.Mode,
		timestamps: format.ShowTimestamps,
		clipboard:  opts.Clipboard,
		width:      80,
		height:     24,
		ctx:        ctx,
		cancel:     cancel,
	}
	m.setOutput("")
	if opts.File != "" {
		m.selectFile(opts.File)
	}
	return m
}

// Init starts the spinner, the event router and the first model load
func (m Model) Init() tea.Cmd {
	model := m.currentModel()
	return tea.Batch(
		m.spinner.Tick,
		waitForEvents(m.worker.Events()),
		func() tea.Msg { return loadModelMsg{model: model} },
	)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		// Any key dismisses a notice and does nothing else
		if m.notice != "" {
			m.notice, m.noticeTitle = "", ""
			return m, nil
		}

		switch m.focus {
		case focusMain:
			return m.handleMainKey(msg)
		case focusWidth:
			return m.handleWidthKey(msg)
		case focusSave:
			return m.handleSaveKey(msg)
		case focusPicker:
			if msg.String() == "esc" {
				m.focus = focusMain
				return m, nil
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case eventsMsg:
		cmds := make([]tea.Cmd, 0, len(msg.events)+1)
		for _, ev := range msg.events {
			cmds = append(cmds, m.applyEvent(ev))
		}
		if !msg.closed {
			cmds = append(cmds, waitForEvents(m.worker.Events()))
		}
		return m, tea.Batch(cmds...)

	case loadModelMsg:
		m.loadModel(msg.model)
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.logs.Add(LogError, msg.err.Error())
			m.showNotice("Save failed", msg.err.Error(), true)
			return m, nil
		}
		m.logs.Add(LogComplete, "Saved to "+msg.path)
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.logs.Add(LogError, msg.err.Error())
			m.showNotice("Copy failed", msg.err.Error(), true)
			return m, nil
		}
		m.logs.Add(LogComplete, fmt.Sprintf("Copied %d characters to the clipboard", msg.chars))
		return m, nil
	}

	if m.focus == focusPicker {
		var cmd tea.Cmd
		m.filepicker, cmd = m.filepicker.Update(msg)
		if didSelect, path := m.filepicker.DidSelectFile(msg); didSelect {
			m.selectFile(path)
			m.focus = focusMain
		}
		return m, cmd
	}

	return m.scroll(msg)
}

// handleMainKey handles keys on the main screen
func (m Model) handleMainKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m.quit()

	case "o":
		m.focus = focusPicker
		return m, m.filepicker.Init()

	case "enter":
		return m.start()

	case "m":
		if m.worker.Busy() {
			m.showNotice("Model unavailable", "The model can't be changed while a model load or transcription is running.", false)
			return m, nil
		}
		m.modelIndex = (m.modelIndex + 1) % len(m.models)
		m.loadModel(m.currentModel())
		return m, nil

	case "tab":
		if m.tab == TabResult {
			m.tab = TabLog
		} else {
			m.tab = TabResult
		}
		return m, nil

	case "w":
		m.focus = focusWidth
		m.widthInput.SetValue(m.widthText)
		m.widthInput.CursorEnd()
		return m, m.widthInput.Focus()

	case "f":
		m.mode = m.mode.Next()
		return m, nil

	case "t":
		m.timestamps = !m.timestamps
		return m, nil

	case "a":
		m.applySettings()
		return m, nil

	case "s":
		if strings.TrimSpace(m.outputText) == "" {
			m.showNotice("Nothing to save", "The result surface is empty.", false)
			return m, nil
		}
		m.focus = focusSave
		m.saveInput.SetValue(DefaultTranscriptName(m.file))
		m.saveInput.CursorEnd()
		return m, m.saveInput.Focus()

	case "c":
		text := m.activeText()
		if strings.TrimSpace(text) == "" {
			m.showNotice("Nothing to copy", "The current surface is empty.", false)
			return m, nil
		}
		return m, copyCmd(m.clipboard, text)

	case "x":
		if m.tab == TabLog {
			m.logs.Clear()
		} else {
			m.progressLines = nil
			m.setOutput("")
		}
		return m, nil
	}

	return m.scroll(msg)
}

// handleWidthKey edits the line length field
func (m Model) handleWidthKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		raw := strings.TrimSpace(m.widthInput.Value())
		n := reflow.ParseLineLength(raw)
		if strconv.Itoa(n) != raw {
			m.logs.Add(LogError, fmt.Sprintf("Line length %q is not a number of at least %d, using %d", raw, reflow.MinLineLength, n))
		}
		m.widthText = strconv.Itoa(n)
		m.widthInput.Blur()
		m.focus = focusMain
		return m, nil
	case "esc":
		m.widthInput.Blur()
		m.focus = focusMain
		return m, nil
	}

	var cmd tea.Cmd
	m.widthInput, cmd = m.widthInput.Update(msg)
	return m, cmd
}

// handleSaveKey edits the save path field
func (m Model) handleSaveKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		path := strings.TrimSpace(m.saveInput.Value())
		if path == "" {
			path = DefaultTranscriptName(m.file)
		}
		m.saveInput.Blur()
		m.focus = focusMain
		if format, ok := reflow.SubtitleFormatFor(path); ok {
			if m.last == nil || len(m.last.Segments) == 0 {
				m.showNotice("Nothing to export", "Subtitles need a transcription result with timed segments.", false)
				return m, nil
			}
			return m, saveCmd(path, reflow.FormatSubtitles(m.last.Segments, format))
		}
		return m, saveCmd(path, m.outputText)
	case "esc":
		m.saveInput.Blur()
		m.focus = focusMain
		return m, nil
	}

	var cmd tea.Cmd
	m.saveInput, cmd = m.saveInput.Update(msg)
	return m, cmd
}

// scroll forwards navigation input to the visible surface
func (m Model) scroll(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.tab == TabLog {
		m.logs.Viewport, cmd = m.logs.Viewport.Update(msg)
	} else {
		m.output, cmd = m.output.Update(msg)
	}
	return m, cmd
}

func (m Model) start() (tea.Model, tea.Cmd) {
	req := m.request
	req.FilePath = m.file
	req.Model = m.worker.Model()

	if _, err := m.worker.Start(m.ctx, req); err != nil {
		m.logs.Add(LogError, "Cannot start: "+err.Error())
		m.showNotice("Cannot start transcription", err.Error(), false)
		return m, nil
	}

	m.runStarted = time.Now()
	m.progressLines = nil
	m.setOutput("")
	m.hasFraction = false
	m.tab = TabResult
	return m, m.progress.SetPercent(0)
}

func (m *Model) loadModel(name string) {
	if _, err := m.worker.LoadModel(m.ctx, name); err != nil {
		m.logs.Add(LogError, "Cannot load model: "+err.Error())
		m.showNotice("Cannot load model", err.Error(), false)
		m.syncModelIndex()
		return
	}
	m.logs.Add(LogStatus, fmt.Sprintf("Loading %s model %s", m.worker.EngineName(), name))
}

// applyEvent routes one worker event to its surface
func (m *Model) applyEvent(ev worker.Event) tea.Cmd {
	if !m.worker.Current(ev) {
		return nil
	}

	switch ev.Kind {
	case worker.EventText:
		if ev.Channel == worker.ChannelProgress {
			m.appendProgress(ev.Text)
		} else {
			m.logs.Add(LogInfo, ev.Text)
		}

	case worker.EventProgress:
		m.hasFraction = true
		return m.progress.SetPercent(ev.Fraction)

	case worker.EventModelLoaded:
		if !m.worker.Handle(ev) {
			return nil
		}
		if ev.Err != nil {
			m.logs.Add(LogError, ev.Text)
			m.showNotice("Model load failed", ev.Err.Error(), true)
			m.syncModelIndex()
			return nil
		}
		m.logs.Add(LogComplete, ev.Text)

	case worker.EventCompleted:
		if !m.worker.Handle(ev) {
			return nil
		}
		m.last = ev.Result
		m.lastContext = reflow.RenderContext{
			Filename:       ev.Request.FilePath,
			DeviceName:     m.worker.Device().Label(),
			ProcessingTime: ev.Elapsed,
		}
		m.renderLast()
		m.logs.Add(LogComplete, fmt.Sprintf("Finished %s in %s", filepath.Base(ev.Request.FilePath), formatDuration(ev.Elapsed)))
		return m.progress.SetPercent(1)

	case worker.EventFailed:
		if !m.worker.Handle(ev) {
			return nil
		}
		m.logs.Add(LogError, ev.Text)
		m.showNotice("Transcription failed", ev.Err.Error(), true)
	}

	return nil
}

// appendProgress adds engine output, redrawing progress bars in place
func (m *Model) appendProgress(line string) {
	n := len(m.progressLines)
	if n > 0 && isProgressBar(line) && isProgressBar(m.progressLines[n-1]) {
		m.progressLines[n-1] = line
	} else {
		m.progressLines = append(m.progressLines, line)
	}
	if len(m.progressLines) > maxProgressLines {
		m.progressLines = m.progressLines[len(m.progressLines)-maxProgressLines:]
	}
	m.setOutput(strings.Join(m.progressLines, "\n"))
	m.output.GotoBottom()
}

func isProgressBar(line string) bool {
	_, ok := engine.ParseProgress(line)
	return ok
}

// applySettings re-renders the last result with the current settings
func (m *Model) applySettings() {
	cfg := m.formatConfig()
	if m.last == nil {
		m.logs.Add(LogStatus, "Settings will apply to the next result")
		return
	}
	m.renderLast()
	m.logs.Add(LogStatus, fmt.Sprintf("Re-rendered: width %d, %s mode, timestamps %s", cfg.Width(), cfg.Mode, onOff(cfg.ShowTimestamps)))
}

func (m *Model) renderLast() {
	m.setOutput(reflow.Render(m.last, m.formatConfig(), m.lastContext))
	m.output.GotoTop()
}

// formatConfig snapshots the current settings
func (m Model) formatConfig() reflow.FormatConfig {
	return reflow.NewFormatConfig(m.widthText, string(m.mode), m.timestamps)
}

func (m *Model) setOutput(text string) {
	m.outputText = text
	if text == "" {
		m.output.SetContent(MutedStyle.Render("  No result yet. Press o to pick a file, enter to transcribe."))
		return
	}
	m.output.SetContent(text)
}

func (m *Model) selectFile(path string) {
	m.file = path
	m.fileSize = 0
	if info, err := os.Stat(path); err == nil {
		m.fileSize = info.Size()
	}
	m.logs.Add(LogStatus, fmt.Sprintf("Selected %s file %s (%.1f MB)", engine.MediaKind(path), filepath.Base(path), float64(m.fileSize)/(1024*1024)))
}

func (m *Model) showNotice(title, body string, isError bool) {
	m.noticeTitle = title
	m.notice = body
	m.noticeErr = isError
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	vpWidth := max(20, width-4)
	vpHeight := max(5, height-14)
	m.output.Width = vpWidth
	m.output.Height = vpHeight
	m.logs.SetSize(vpWidth, vpHeight)
	m.progress.Width = max(10, width-20)
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.cancel()
	return m, tea.Quit
}

// syncModelIndex points the model selector back at the model the worker
// actually holds
func (m *Model) syncModelIndex() {
	loaded := m.worker.Model()
	for i, name := range m.models {
		if name == loaded {
			m.modelIndex = i
			return
		}
	}
}

func (m Model) currentModel() string {
	if len(m.models) == 0 {
		return ""
	}
	return m.models[m.modelIndex]
}

func (m Model) activeText() string {
	if m.tab == TabLog {
		return m.logs.Text()
	}
	return m.outputText
}

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return MutedStyle.Render("Goodbye!\n")
	}

	var b strings.Builder

	b.WriteString(Header())
	b.WriteString("\n\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.renderSettings())
	b.WriteString("\n")
	if activity := m.renderActivity(); activity != "" {
		b.WriteString(activity)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case m.notice != "":
		b.WriteString(NoticeBox(m.noticeTitle, m.notice, m.noticeErr, max(30, m.width-8)))
	case m.focus == focusPicker:
		title := TitleStyle.Render("Select an audio or video file")
		b.WriteString(FocusedBoxStyle.Render(title + "\n\n" + m.filepicker.View()))
	default:
		b.WriteString(m.renderTabs())
		b.WriteString("\n")
		if m.tab == TabLog {
			b.WriteString(BoxStyle.Render(m.logs.View()))
		} else {
			b.WriteString(BoxStyle.Render(m.output.View()))
		}
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelp())

	return b.String()
}

func (m Model) renderStatus() string {
	dev := m.worker.Device()
	devStyle := WarningStyle
	if dev.Accelerated {
		devStyle = SuccessStyle
	}

	var badge string
	switch {
	case m.worker.Loading():
		badge = BadgeWarningStyle.Render("loading")
	case m.worker.ModelReady():
		badge = BadgeSuccessStyle.Render("ready")
	default:
		badge = BadgeErrorStyle.Render("not loaded")
	}

	file := MutedStyle.Render("no file selected (press o)")
	if m.file != "" {
		file = BodyStyle.Render(fmt.Sprintf("%s (%.1f MB)", filepath.Base(m.file), float64(m.fileSize)/(1024*1024)))
	}

	return MutedStyle.Render("Device: ") + devStyle.Render(dev.Label()) + "\n" +
		MutedStyle.Render("Engine: ") + BodyStyle.Render(m.worker.EngineName()) + "  " +
		MutedStyle.Render("Model: ") + BodyStyle.Render(m.currentModel()) + " " + badge + "\n" +
		MutedStyle.Render("File:   ") + file
}

func (m Model) renderSettings() string {
	if m.focus == focusSave {
		return MutedStyle.Render("Save as: ") + m.saveInput.View()
	}

	width := BodyStyle.Render(m.widthText)
	if m.focus == focusWidth {
		width = m.widthInput.View()
	}
	return MutedStyle.Render("Width: ") + width + "  " +
		MutedStyle.Render("Mode: ") + BodyStyle.Render(string(m.mode)) + "  " +
		MutedStyle.Render("Timestamps: ") + BodyStyle.Render(onOff(m.timestamps))
}

func (m Model) renderActivity() string {
	switch {
	case m.worker.State() == worker.Running:
		line := m.spinner.View() + " " + BodyStyle.Render(fmt.Sprintf("Transcribing %s", filepath.Base(m.file))) +
			" " + MutedStyle.Render(formatDuration(time.Since(m.runStarted)))
		if m.hasFraction {
			line += "\n" + m.progress.View()
		}
		return line
	case m.worker.Loading():
		return m.spinner.View() + " " + BodyStyle.Render("Loading model "+m.currentModel()+"...")
	}
	return ""
}

func (m Model) renderTabs() string {
	result, logs := tabStyle, tabStyle
	if m.tab == TabResult {
		result = activeTabStyle
	} else {
		logs = activeTabStyle
	}
	return lipgloss.JoinHorizontal(lipgloss.Bottom, result.Render("Result"), logs.Render("Log"))
}

// renderHelp renders context-sensitive help
func (m Model) renderHelp() string {
	switch {
	case m.notice != "":
		return KeyHelp("any key", "Dismiss")
	case m.focus == focusPicker:
		return KeyHelp("j/k", "Navigate", "enter", "Select", "h/l", "Go up/down", "esc", "Back")
	case m.focus == focusWidth, m.focus == focusSave:
		return KeyHelp("enter", "Confirm", "esc", "Cancel")
	}
	return KeyHelp(
		"o", "Open", "enter", "Transcribe", "m", "Model", "tab", "Result/Log",
		"w", "Width", "f", "Mode", "t", "Timestamps", "a", "Apply",
		"s", "Save", "c", "Copy", "x", "Clear", "q", "Quit",
	)
}

// Getter methods for external access
func (m Model) IsQuitting() bool { return m.quitting }

func (m Model) OutputText() string { return m.outputText }

func (m Model) Notice() string { return m.notice }

func (m Model) ActiveTab() Tab { return m.tab }

func (m Model) LastResult() *engine.Result { return m.last }

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

// Run starts the full-screen UI and blocks until it exits
func Run(w *worker.Worker, opts Options) error {
	p := tea.NewProgram(NewModel(w, opts), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}
