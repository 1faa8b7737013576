// Package tui renders a live dashboard of a running daemon.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/deepsleep-project/deepsleep/internal/api"
	"github.com/deepsleep-project/deepsleep/internal/app/stats"
	"github.com/deepsleep-project/deepsleep/internal/domain"
)

// Source is where the dashboard reads from. *api.Client satisfies it.
type Source interface {
	Status(ctx context.Context) (api.StatusResponse, error)
	Stats(ctx context.Context) (stats.Snapshot, error)
	ApplyMode(ctx context.Context, mode domain.SchedulerMode) error
}

var modeKeys = map[string]domain.SchedulerMode{
	"1": domain.ModeDaily,
	"2": domain.ModeStandby,
	"3": domain.ModeDefault,
	"4": domain.ModePerformance,
}

const fetchTimeout = 3 * time.Second

type tickMsg time.Time

type snapshotMsg struct {
	status api.StatusResponse
	stats  stats.Snapshot
	err    error
	at     time.Time
}

type modeMsg struct {
	mode domain.SchedulerMode
	err  error
}

// Model is the dashboard state.
type Model struct {
	src      Source
	interval time.Duration

	status    api.StatusResponse
	stats     stats.Snapshot
	hasData   bool
	lastError string
	message   string
	updated   time.Time
	quitting  bool
}

// NewModel creates a dashboard refreshing every interval (default 2s).
func NewModel(src Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return Model{src: src, interval: interval}
}

// Init fetches immediately and starts the refresh timer.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

// Update handles key presses, refresh ticks and fetch results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())
	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())
	case snapshotMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
			return m, nil
		}
		m.status = msg.status
		m.stats = msg.stats
		m.hasData = true
		m.lastError = ""
		m.updated = msg.at
		return m, nil
	case modeMsg:
		if msg.err != nil {
			m.lastError = fmt.Sprintf("mode %s: %v", msg.mode, msg.err)
			return m, nil
		}
		m.message = "switched to " + msg.mode.Label()
		return m, m.fetch()
	}
	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "ctrl+c", "q", "esc":
		m.quitting = true
		return m, tea.Quit
	case "r":
		return m, m.fetch()
	}
	if mode, ok := modeKeys[key]; ok {
		return m, m.applyMode(mode)
	}
	return m, nil
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) fetch() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		st, err := src.Status(ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		snap, err := src.Stats(ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		return snapshotMsg{status: st, stats: snap, at: time.Now()}
	}
}

func (m Model) applyMode(mode domain.SchedulerMode) tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		return modeMsg{mode: mode, err: src.ApplyMode(ctx, mode)}
	}
}

// ─── View ───────────────────────────────────────────────────────────────────

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d7ff")).MarginBottom(1)
	lineStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffd700")).MarginTop(1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#87d7af")).Width(22)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	forceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff875f")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true).MarginTop(1)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).MarginTop(1)
)

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("deepsleep"))
	b.WriteString("\n")

	if !m.hasData {
		b.WriteString(valueStyle.Render("waiting for daemon..."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.renderSession())
		b.WriteString(m.renderStats())
	}

	if m.message != "" {
		b.WriteString(hintStyle.Render(m.message))
		b.WriteString("\n")
	}
	if m.lastError != "" {
		b.WriteString(errorStyle.Render("Error: " + m.lastError))
		b.WriteString("\n")
	}
	b.WriteString(hintStyle.Render("1-4: daily/standby/default/performance  r: refresh  q: quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderSession() string {
	var b strings.Builder
	s := m.status
	line := lineStyle.Render(s.Line)
	if s.ForceMode {
		line += " " + forceStyle.Render("FORCE")
	}
	b.WriteString(line)
	b.WriteString("\n")

	running := "stopped"
	if s.Running {
		running = "running"
	}
	rows := [][2]string{
		{"Service", running},
		{"Screen", s.Screen},
		{"Idle state", s.Idle},
		{"Scheduler mode", string(s.Mode)},
		{"Motion backup", s.MotionBackup},
		{"Last screen off", clock(s.LastScreenOff)},
		{"Last screen on", clock(s.LastScreenOn)},
		{"Last suppress", clock(s.LastSuppress)},
		{"Updated", clock(m.updated)},
	}
	b.WriteString(sectionStyle.Render("Session"))
	b.WriteString("\n")
	for _, r := range rows {
		if r[1] == "" {
			r[1] = "-"
		}
		b.WriteString(labelStyle.Render(r[0]) + valueStyle.Render(r[1]) + "\n")
	}
	return b.String()
}

func (m Model) renderStats() string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Statistics"))
	b.WriteString("\n")

	names := make([]string, 0, len(m.stats.Counters))
	for name := range m.stats.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(labelStyle.Render(name) + valueStyle.Render(fmt.Sprint(m.stats.Counters[name])) + "\n")
	}
	b.WriteString(labelStyle.Render("enter rate") + valueStyle.Render(fmt.Sprintf("%.0f%%", m.stats.EnterRate*100)) + "\n")
	b.WriteString(labelStyle.Render("recovery rate") + valueStyle.Render(fmt.Sprintf("%.0f%%", m.stats.RecoveryRate*100)) + "\n")
	if m.stats.Uptime != "" {
		b.WriteString(labelStyle.Render("uptime") + valueStyle.Render(m.stats.Uptime) + "\n")
	}
	return b.String()
}

func clock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("15:04:05")
}
