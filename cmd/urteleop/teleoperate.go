package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/urteleop/pkg/robot"
	"github.com/gwillem/urteleop/pkg/teleop"
	"github.com/gwillem/urteleop/pkg/ur"
)

type TeleoperateCommand struct {
	Config  string `long:"config" description:"Session configuration file (.json, .yaml; default urteleop.json)"`
	Host    string `long:"host" description:"Controller address, overrides the configuration"`
	Plain   bool   `long:"plain" description:"Read keys from stdin and print logs instead of the TUI"`
	Verbose bool   `short:"v" long:"verbose" description:"Log protocol details (plain mode)"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
	keyBuffer    = 16
)

// Joint colors - distinct colors for each joint
var jointColors = map[robot.JointName]string{
	robot.Base:     "196", // red
	robot.Shoulder: "208", // orange
	robot.Elbow:    "226", // yellow
	robot.Wrist1:   "46",  // green
	robot.Wrist2:   "51",  // cyan
	robot.Wrist3:   "201", // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type teleopModel struct {
	ctrl          *teleop.Controller
	cancel        context.CancelFunc
	keys          teleop.KeyChan
	samples       <-chan ur.Sample
	limits        robot.JointLimits
	chart         *streamlinechart.Model
	width         int      // terminal width
	height        int      // terminal height
	logs          []string // last N log messages
	quitting      bool
	lastPositions robot.Joints // freeze the chart while the arm is idle
	seen          bool
}

func (m *teleopModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the session
type sampleMsg ur.Sample
type logMsg string
type doneMsg struct{}

func waitForSample(samples <-chan ur.Sample) tea.Cmd {
	return func() tea.Msg {
		return sampleMsg(<-samples)
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *teleopModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m *teleopModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialTeleopModel(ctrl *teleop.Controller, samples <-chan ur.Sample, cancel context.CancelFunc) teleopModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-100, 100),
	)
	for _, name := range robot.AllJoints() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[name]))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}

	return teleopModel{
		ctrl:    ctrl,
		cancel:  cancel,
		keys:    make(teleop.KeyChan, keyBuffer),
		samples: samples,
		limits:  robot.DefaultLimits(),
		chart:   &chart,
	}
}

func (m teleopModel) Init() tea.Cmd {
	return tea.Batch(
		waitForSample(m.samples),
		waitForLog(m.ctrl),
	)
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			// The session stops the recording and ends with doneMsg.
			m.cancel()
			return m, nil
		}
		if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 {
			select {
			case m.keys <- msg.Runes[0]:
			default:
				m.addLog("Busy, key dropped")
			}
		}

	case sampleMsg:
		if q, ok := ur.Sample(msg).Joints(); ok && (!m.seen || q != m.lastPositions) {
			for name, pos := range m.limits.Normalize(q) {
				m.chart.PushDataSet(string(name), pos)
			}
			m.chart.DrawAll()
			m.lastPositions = q
			m.seen = true
		}
		return m, waitForSample(m.samples)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)

	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m teleopModel) View() string {
	if m.quitting {
		return "Teleoperation stopped.\n"
	}

	var sb strings.Builder

	// Header
	rc := m.ctrl.Recording()
	sb.WriteString(titleStyle.Render("UR Teleoperate"))
	sb.WriteString(fmt.Sprintf(" - recording %s at %g Hz", rc.Output, rc.Frequency))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render(fmt.Sprintf("Press '%c' to move home, '%c' to play the program, '%c' to quit",
			teleop.KeyHome, teleop.KeyProgram, teleop.KeyQuit))
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, name := range robot.AllJoints() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+string(name))
	}
	return strings.Join(items, "  ")
}

func (c *TeleoperateCommand) Execute(args []string) error {
	cfg, loaded, err := loadSessionConfig(c.Config, c.Host)
	if err != nil {
		return err
	}
	if loaded {
		fmt.Printf("Loaded configuration from %s\n", configPath(c.Config))
	} else {
		fmt.Printf("No configuration at %s, using defaults\n", configPath(c.Config))
	}

	// The TUI owns the terminal, so protocol logs go nowhere there.
	logger := slog.New(slog.DiscardHandler)
	if c.Plain {
		logger = newCommandLogger(c.Verbose)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Connecting to %s...\n", cfg.Host)
	conn, err := ur.Dial(ctx, cfg.Host, ur.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Host, err)
	}
	defer conn.Close()

	ctrl := teleop.NewController(conn, teleop.ConfigFrom(cfg))
	if c.Plain {
		return runPlain(ctx, ctrl)
	}
	return runTUI(ctx, ctrl, conn.Samples())
}

func runPlain(ctx context.Context, ctrl *teleop.Controller) error {
	// Keys are read in raw mode, which needs explicit carriage returns.
	eol := "\n"
	if term.IsTerminal(int(os.Stdout.Fd())) {
		eol = "\r\n"
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case msg := <-ctrl.Logs():
				fmt.Print(msg + eol)
			case <-stop:
				for len(ctrl.Logs()) > 0 {
					fmt.Print(<-ctrl.Logs() + eol)
				}
				return
			}
		}
	}()

	err := ctrl.Run(ctx, teleop.NewTerminalKeys(os.Stdin, os.Stdout))
	close(stop)
	<-done
	return err
}

func runTUI(ctx context.Context, ctrl *teleop.Controller, samples <-chan ur.Sample) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := initialTeleopModel(ctrl, samples, cancel)
	p := tea.NewProgram(model, tea.WithAltScreen())

	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.Run(ctx, model.keys)
		p.Send(doneMsg{})
	}()

	_, tuiErr := p.Run()
	if tuiErr != nil {
		cancel()
	}
	err := <-errCh

	for len(ctrl.Logs()) > 0 {
		fmt.Println(<-ctrl.Logs())
	}
	if tuiErr != nil {
		return fmt.Errorf("run tui: %w", tuiErr)
	}
	return err
}
