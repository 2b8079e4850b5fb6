package main

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"insulink/clipboard"
	"insulink/questionnaire"
	"insulink/state"
)

// TUI message types
type loadingMsg struct{}
type bankErrorMsg struct{ Err error }
type promptMsg struct {
	Prompt       questionnaire.Prompt
	Index, Total int
}
type speakingMsg struct{ On bool }
type RecordingStartMsg struct{}
type RecordingStopMsg struct{ Auto bool }
type RecordingTickMsg struct{ Duration float64 }
type AudioLevelMsg struct{ Level float64 }
type LiveTranscriptMsg struct{ Text string }
type answerMsg struct {
	Prompt   questionnaire.Prompt
	Text     string
	NoSpeech bool
}
type errorMsg struct{ Err error }
type submittingMsg struct{}
type resultMsg struct {
	Result questionnaire.Result
	Alerts []state.Alert
}
type ModeLineMsg struct{ Text string }
type DeviceLineMsg struct{ Text string }
type tickMsg time.Time

type tuiPhase int

const (
	phaseLoading tuiPhase = iota
	phasePrompt
	phaseRecording
	phaseTranscribing
	phaseSubmitting
	phaseResult
)

type tuiModel struct {
	app        *state.App
	ctl        *controls
	typewriter time.Duration

	phase         tuiPhase
	frame         int
	width, height int

	prompt      questionnaire.Prompt
	index       int
	total       int
	answered    int
	shownAt     time.Time
	speaking    bool
	recDuration float64
	audioLevel  float64
	peakLevel   float64
	live        string
	lastAnswer  string
	noSpeech    bool
	errText     string
	autoStopped bool

	result   *questionnaire.Result
	copied   bool
	alert    state.Alert
	hasAlert bool

	modeLine   string
	deviceLine string
}

// Pre-computed pixel styles to avoid allocations in render loop
var (
	pixelColorsRec  = []string{"", "226", "220", "214", "208", "196", "160", "124", "88", "52", "236", "236", "236", "236", "255", "249"}
	pixelColorsIdle = []string{"", "195", "159", "123", "87", "45", "39", "33", "27", "17", "236", "236", "236", "236", "255", "249"}
	pixelStylesRec  [16]lipgloss.Style
	pixelStylesIdle [16]lipgloss.Style
	pixelBgRec      [16][16]lipgloss.Style
	pixelBgIdle     [16][16]lipgloss.Style
)

var levelColors = map[questionnaire.Level]lipgloss.Color{
	questionnaire.LevelLow:    "196",
	questionnaire.LevelMedium: "214",
	questionnaire.LevelHigh:   "42",
}

func init() {
	for i, c := range pixelColorsRec {
		if c != "" {
			pixelStylesRec[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
		}
	}
	for i, c := range pixelColorsIdle {
		if c != "" {
			pixelStylesIdle[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
		}
	}
	for i, fg := range pixelColorsRec {
		for j, bg := range pixelColorsRec {
			if fg != "" && bg != "" {
				pixelBgRec[i][j] = lipgloss.NewStyle().Foreground(lipgloss.Color(fg)).Background(lipgloss.Color(bg))
			}
		}
	}
	for i, fg := range pixelColorsIdle {
		for j, bg := range pixelColorsIdle {
			if fg != "" && bg != "" {
				pixelBgIdle[i][j] = lipgloss.NewStyle().Foreground(lipgloss.Color(fg)).Background(lipgloss.Color(bg))
			}
		}
	}
}

func newTUIProgram(app *state.App, ctl *controls, typewriter time.Duration) *tea.Program {
	m := tuiModel{app: app, ctl: ctl, typewriter: typewriter}
	return tea.NewProgram(m, tea.WithAltScreen())
}

// tuiSink forwards check-in events to the Bubble Tea program.
type tuiSink struct {
	p *tea.Program
}

func (s *tuiSink) Loading()            { s.p.Send(loadingMsg{}) }
func (s *tuiSink) BankError(err error) { s.p.Send(bankErrorMsg{Err: err}) }
func (s *tuiSink) Prompt(p questionnaire.Prompt, index, total int) {
	s.p.Send(promptMsg{Prompt: p, Index: index, Total: total})
}
func (s *tuiSink) Speaking(on bool)              { s.p.Send(speakingMsg{On: on}) }
func (s *tuiSink) RecordingStart()               { s.p.Send(RecordingStartMsg{}) }
func (s *tuiSink) RecordingTick(d time.Duration) { s.p.Send(RecordingTickMsg{Duration: d.Seconds()}) }
func (s *tuiSink) AudioLevel(level float64)      { s.p.Send(AudioLevelMsg{Level: level}) }
func (s *tuiSink) RecordingStop(auto bool)       { s.p.Send(RecordingStopMsg{Auto: auto}) }
func (s *tuiSink) LiveTranscript(text string)    { s.p.Send(LiveTranscriptMsg{Text: text}) }
func (s *tuiSink) Answer(p questionnaire.Prompt, text string, noSpeech bool) {
	s.p.Send(answerMsg{Prompt: p, Text: text, NoSpeech: noSpeech})
}
func (s *tuiSink) Error(err error) { s.p.Send(errorMsg{Err: err}) }
func (s *tuiSink) Submitting()     { s.p.Send(submittingMsg{}) }
func (s *tuiSink) Result(res questionnaire.Result, alerts []state.Alert) {
	s.p.Send(resultMsg{Result: res, Alerts: alerts})
}
func (s *tuiSink) ModeLine(text string)   { s.p.Send(ModeLineMsg{Text: text}) }
func (s *tuiSink) DeviceLine(text string) { s.p.Send(DeviceLineMsg{Text: text}) }

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.frame++
		if m.app != nil {
			m.alert, m.hasAlert = m.app.CurrentAlert()
		}
		return m, tuiTick()

	case loadingMsg:
		m.phase = phaseLoading
		m.errText = ""

	case bankErrorMsg:
		m.phase = phaseLoading
		m.errText = msg.Err.Error() + " (space to retry)"

	case promptMsg:
		if m.phase == phaseResult || msg.Prompt != m.prompt || msg.Index != m.index {
			m.shownAt = time.Now()
		}
		if msg.Index == 0 && m.phase != phasePrompt {
			m.answered = 0
			m.result = nil
			m.copied = false
			m.lastAnswer = ""
		}
		m.phase = phasePrompt
		m.prompt = msg.Prompt
		m.index = msg.Index
		m.total = msg.Total

	case speakingMsg:
		m.speaking = msg.On

	case RecordingStartMsg:
		m.phase = phaseRecording
		m.recDuration = 0
		m.audioLevel = 0
		m.peakLevel = 0
		m.live = ""
		m.errText = ""
		m.autoStopped = false

	case RecordingStopMsg:
		m.phase = phaseTranscribing
		m.audioLevel = 0
		m.autoStopped = msg.Auto

	case RecordingTickMsg:
		m.recDuration = msg.Duration

	case AudioLevelMsg:
		if m.phase == phaseRecording {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
			m.peakLevel = max(m.peakLevel, msg.Level)
		}

	case LiveTranscriptMsg:
		m.live = msg.Text

	case answerMsg:
		m.answered++
		m.lastAnswer = msg.Text
		m.noSpeech = msg.NoSpeech

	case errorMsg:
		m.errText = msg.Err.Error()
		if m.phase != phaseSubmitting {
			m.phase = phasePrompt
		}

	case submittingMsg:
		m.phase = phaseSubmitting

	case resultMsg:
		m.phase = phaseResult
		res := msg.Result
		m.result = &res

	case ModeLineMsg:
		m.modeLine = msg.Text

	case DeviceLineMsg:
		m.deviceLine = msg.Text
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case " ", "enter":
		if m.phase == phaseRecording {
			m.ctl.Stop()
		} else {
			m.ctl.Start()
		}
	case "s":
		m.ctl.Stop()
	case "n":
		m.ctl.Next()
	case "c":
		if m.result != nil {
			if _, err := clipboard.CopyResult(*m.result); err == nil {
				m.copied = true
			} else {
				m.errText = "copy: " + err.Error()
			}
		}
	case "d":
		if m.app != nil {
			m.app.Dismiss()
			m.hasAlert = false
		}
	}
	return m, nil
}

// revealed is the typewriter prefix of the current prompt.
func (m tuiModel) revealed(now time.Time) string {
	text := m.prompt.Text
	if m.typewriter <= 0 || m.phase != phasePrompt {
		return text
	}
	n := int(now.Sub(m.shownAt) / m.typewriter)
	if n >= utf8.RuneCountInString(text) {
		return text
	}
	return string([]rune(text)[:n])
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	const orbWidth = 45
	recording := m.phase == phaseRecording
	level := m.audioLevel
	if !recording {
		level = 0
	}

	orb := renderOrb(m.frame, level, recording)

	var infoLines []string
	switch {
	case recording:
		status := lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true).
			Render(fmt.Sprintf("● REC %.1fs", m.recDuration))
		infoLines = append(infoLines, status)
		if m.recDuration > 1.0 && m.peakLevel < 0.02 {
			warn := lipgloss.NewStyle().
				Foreground(lipgloss.Color("208")).
				Render("  ⚠ no voice detected")
			infoLines = append(infoLines, warn)
		}
	case m.speaking:
		infoLines = append(infoLines, lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Render("♪ SPEAKING"))
	case m.phase == phaseTranscribing:
		infoLines = append(infoLines, lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("… TRANSCRIBING"))
	case m.phase == phaseSubmitting:
		infoLines = append(infoLines, lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("… SCORING"))
	default:
		infoLines = append(infoLines, lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("○ STANDBY"))
	}

	if m.modeLine != "" {
		infoLines = append(infoLines, lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render(m.modeLine))
	}
	if m.deviceLine != "" {
		infoLines = append(infoLines, lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(m.deviceLine))
	}

	infoLines = append(infoLines, "")

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	infoLines = append(infoLines,
		boldStyle.Render("space")+helpStyle.Render(" answer/stop  ")+boldStyle.Render("q")+helpStyle.Render(" quit"),
		boldStyle.Render("c")+helpStyle.Render(" copy  ")+boldStyle.Render("d")+helpStyle.Render(" dismiss  ")+boldStyle.Render("n")+helpStyle.Render(" new"),
		helpStyle.Render("insulink "+version),
	)

	for _, line := range infoLines {
		orb += line + "\n"
	}
	orbLines := strings.Split(orb, "\n")

	panelWidth := max(m.width-orbWidth-1, 20)
	wrapWidth := max(panelWidth-2, 10)

	var body string
	if m.phase == phaseResult && m.result != nil {
		body = m.viewResult(wrapWidth)
	} else {
		body = m.viewQuestion(wrapWidth)
	}
	if m.hasAlert {
		body = renderAlert(m.alert, wrapWidth) + "\n\n" + body
	}

	panel := lipgloss.NewStyle().
		Width(panelWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(body)

	orbPadded := make([]string, m.height)
	for i := range orbPadded {
		if i < len(orbLines) {
			orbPadded[i] = orbLines[i]
		} else {
			orbPadded[i] = strings.Repeat(" ", orbWidth-1)
		}
	}
	orbPanel := lipgloss.NewStyle().
		Width(orbWidth - 1).
		Height(m.height).
		Render(strings.Join(orbPadded, "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, orbPanel, panel)
}

func (m tuiModel) viewQuestion(wrapWidth int) string {
	var b strings.Builder
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	if m.phase == phaseLoading {
		b.WriteString(dim.Render("Loading questions..."))
		if m.errText != "" {
			b.WriteString("\n\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render(m.errText))
		}
		return b.String()
	}

	pct := 0
	if m.total > 0 {
		pct = m.answered * 100 / m.total
	}
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("246")).
		Render(fmt.Sprintf("Question %d of %d  ·  %d%%", m.index+1, m.total, pct)))
	b.WriteString("\n")
	b.WriteString(progressBar(m.answered, m.total, min(wrapWidth, 40)))
	b.WriteString("\n\n")

	b.WriteString(dim.Render(m.prompt.Category.Label()) + "\n")
	textStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	for _, line := range wrapText(m.revealed(time.Now()), wrapWidth) {
		b.WriteString(textStyle.Render(line) + "\n")
	}

	if m.live != "" {
		b.WriteString("\n")
		liveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Italic(true)
		for _, line := range wrapText(m.live, wrapWidth) {
			b.WriteString(liveStyle.Render(line) + "\n")
		}
	}

	if m.phase == phaseTranscribing && m.autoStopped {
		b.WriteString("\n" + dim.Render("stopped after silence") + "\n")
	}

	if m.answered > 0 && m.phase != phaseRecording {
		b.WriteString("\n" + dim.Render("Last answer") + "\n")
		if m.noSpeech {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Render("(no speech detected)") + "\n")
		} else {
			for _, line := range wrapText(m.lastAnswer, wrapWidth) {
				b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Render(line) + "\n")
			}
		}
	}

	if m.errText != "" {
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render(m.errText) + "\n")
	}
	return b.String()
}

func (m tuiModel) viewResult(wrapWidth int) string {
	res := m.result
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Render("Check-in complete") + "\n\n")

	barWidth := min(wrapWidth-14, 20)
	for _, c := range questionnaire.Categories {
		score, ok := res.Scores[c]
		if !ok {
			continue
		}
		lvl := res.Levels[c]
		style := lipgloss.NewStyle().Foreground(levelColors[lvl])
		b.WriteString(fmt.Sprintf("%-11s %s %s\n", c.Label(), style.Render(scoreBar(score, barWidth)), style.Render(fmt.Sprintf("%g/10", score))))
		if s := res.Suggestions[c]; s != "" {
			for _, line := range wrapText(s, wrapWidth-2) {
				b.WriteString("  " + lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render(line) + "\n")
			}
		}
		b.WriteString("\n")
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("Overall %.1f/10", res.Average)))
	if m.copied {
		b.WriteString(" " + lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("[✓ copied]"))
	}
	b.WriteString("\n")
	return b.String()
}

func renderAlert(a state.Alert, width int) string {
	color := lipgloss.Color("214")
	if a.Severity == state.SeverityCritical {
		color = lipgloss.Color("196")
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1).
		Width(max(width-4, 10))
	title := lipgloss.NewStyle().Foreground(color).Bold(true).Render(a.Title)
	return box.Render(title + "\n" + a.Message)
}

func progressBar(done, total, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	filled := done * width / total
	return lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(lipgloss.Color("236")).Render(strings.Repeat("░", width-filled))
}

// scoreBar draws score on a 0..10 scale.
func scoreBar(score float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(math.Round(math.Max(0, math.Min(score, 10)) / 10 * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func renderOrb(frame int, level float64, recording bool) string {
	const charsW = 44
	const charsH = 15
	const pixW = charsW
	const pixH = charsH * 2

	centerX := float64(pixW) / 2
	centerY := float64(pixH) / 2

	// Voice-reactive breathing
	var breathe float64
	if recording {
		breathe = math.Sin(float64(frame)*0.10)*0.03 + level*10.0 - 0.05
	} else {
		breathe = math.Sin(float64(frame)*0.08)*0.02 - 0.05
	}

	pixels := make([][]int, pixH)
	for i := range pixels {
		pixels[i] = make([]int, pixW)
	}

	type ring struct {
		radius     float64
		breatheAmt float64
		colorIdx   int
	}

	rings := []ring{
		{0.6, 0.10, 1},
		{1.3, 0.12, 2},
		{2.0, 0.15, 3},
		{2.8, 0.35, 4},
		{3.5, 0.40, 5},
		{4.2, 0.38, 6},
		{5.0, 0.30, 7},
		{5.8, 0.15, 8},
		{6.5, 0.03, 9},
		{7.2, 0.0, 10},
		{8.0, 0.0, 11},
		{10.0, 0.0, 12},
		{12.0, 0.0, 13},
	}

	for y := 0; y < pixH; y++ {
		for x := 0; x < pixW; x++ {
			dx := float64(x) - centerX
			dy := float64(y) - centerY
			dist := math.Sqrt(dx*dx + dy*dy)
			for _, r := range rings {
				radius := min(r.radius+breathe*r.breatheAmt*20, 10.0)
				if dist < radius {
					pixels[y][x] = r.colorIdx
					break
				}
			}
		}
	}

	// Glass reflections
	type spot struct {
		ox, oy float64
		radius float64
		color  int
	}
	dSide, dSide2 := 9.0, 7.2
	dTop, dTop2 := 10.0, 8.2
	spots := []spot{
		{-dSide * 0.707, -dSide * 0.707, 0.7, 14},
		{-dSide2 * 0.707, -dSide2 * 0.707, 0.4, 15},
		{0, -dTop, 0.8, 14},
		{0, -dTop2, 0.6, 15},
		{dSide * 0.707, -dSide * 0.707, 0.7, 14},
		{dSide2 * 0.707, -dSide2 * 0.707, 0.4, 15},
	}
	for y := 0; y < pixH; y++ {
		for x := 0; x < pixW; x++ {
			px := float64(x) - centerX
			py := float64(y) - centerY
			for _, s := range spots {
				dx := px - s.ox
				dy := py - s.oy
				rLen := math.Sqrt(s.ox*s.ox + s.oy*s.oy)
				if rLen < 0.001 {
					rLen = 1
				}
				tx, ty := -s.oy/rLen, s.ox/rLen
				dt := dx*tx + dy*ty
				dn := dx*(-ty) + dy*tx
				if (dt*dt)/9.0+dn*dn < s.radius*s.radius {
					pixels[y][x] = s.color
				}
			}
		}
	}

	styles, bgStyles := &pixelStylesIdle, &pixelBgIdle
	if recording {
		styles, bgStyles = &pixelStylesRec, &pixelBgRec
	}

	var result strings.Builder
	for cy := 0; cy < charsH; cy++ {
		for cx := 0; cx < charsW; cx++ {
			top := pixels[cy*2][cx]
			bot := pixels[cy*2+1][cx]
			switch {
			case top == 0 && bot == 0:
				result.WriteString(" ")
			case top == bot:
				result.WriteString(styles[top].Render("█"))
			case bot == 0:
				result.WriteString(styles[top].Render("▀"))
			case top == 0:
				result.WriteString(styles[bot].Render("▄"))
			default:
				result.WriteString(bgStyles[top][bot].Render("▀"))
			}
		}
		result.WriteString("\n")
	}
	return result.String()
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	runes := []rune(text)
	var lines []string
	for len(runes) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if runes[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(runes[:splitAt]))
		runes = []rune(strings.TrimLeft(string(runes[splitAt:]), " "))
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}
