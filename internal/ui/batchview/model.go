// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package batchview

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/routebatch/internal/batch"
	"github.com/jeranaias/routebatch/internal/tasks"
	"github.com/jeranaias/routebatch/internal/ui/styles"
	"github.com/jeranaias/routebatch/internal/util"
)

// Source is what the view observes. *batch.Runner satisfies it.
type Source interface {
	Stats() batch.Stats
	Cancel()
	Done() <-chan struct{}
}

// Options configures the view.
type Options struct {
	Title string

	// NoColor renders without colour or gradients
	NoColor bool

	// MaxRunning caps the number of in-flight labels listed
	MaxRunning int

	// MaxFailures caps the number of recent failures listed
	MaxFailures int

	// Interval is how often stats are polled
	Interval time.Duration
}

// =============================================================================
// MESSAGES
// =============================================================================

// tickMsg triggers a stats poll.
type tickMsg time.Time

// doneMsg is sent once the source's done channel closes.
type doneMsg struct{}

// settledMsg carries one task settlement from the queue.
type settledMsg tasks.TaskNotification

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for a running batch.
type Model struct {
	source Source
	queue  *tasks.Queue // optional; supplies running labels and failures
	opts   Options
	theme  *styles.Theme
	keys   KeyMap

	spinner  spinner.Model
	progress progress.Model

	stats     batch.Stats
	running   []*tasks.Task
	failures  []tasks.TaskNotification // most recent last
	settled   <-chan tasks.TaskNotification
	started   time.Time
	width     int
	canceling bool
	done      bool
}

// New creates a view over source. queue may be nil.
func New(source Source, queue *tasks.Queue, opts Options) Model {
	if opts.MaxRunning <= 0 {
		opts.MaxRunning = 5
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 3
	}
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	theme := styles.NewTheme(opts.NoColor)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = theme.Running

	var p progress.Model
	if theme.NoColor {
		p = progress.New(progress.WithSolidFill(""), progress.WithColorProfile(theme.ColorProfile), progress.WithoutPercentage())
	} else {
		p = progress.New(progress.WithGradient(styles.GradientStart, styles.GradientEnd), progress.WithoutPercentage())
	}
	p.Width = 40

	var settled <-chan tasks.TaskNotification
	if queue != nil {
		settled = queue.Notifications()
	}

	return Model{
		settled:  settled,
		source:   source,
		queue:    queue,
		opts:     opts,
		theme:    theme,
		keys:     DefaultKeyMap(),
		spinner:  s,
		progress: p,
		stats:    source.Stats(),
		started:  time.Now(),
		width:    80,
	}
}

// Init starts the spinner, the stats poll, the done watcher and, with a
// queue, the settlement listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick(), waitDone(m.source), m.waitSettled())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitDone(src Source) tea.Cmd {
	return func() tea.Msg {
		<-src.Done()
		return doneMsg{}
	}
}

// waitSettled delivers the next settlement, or nothing once the source is
// done.
func (m Model) waitSettled() tea.Cmd {
	if m.settled == nil {
		return nil
	}
	ch, done := m.settled, m.source.Done()
	return func() tea.Msg {
		select {
		case n := <-ch:
			return settledMsg(n)
		case <-done:
			return nil
		}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Cancel) && !m.done && !m.canceling {
			m.canceling = true
			m.source.Cancel()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = min(max(msg.Width-20, 10), 80)
		return m, nil

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.refresh()
		return m, m.tick()

	case settledMsg:
		if msg.Status == tasks.TaskStatusFailed {
			m.failures = append(m.failures, tasks.TaskNotification(msg))
			if len(m.failures) > m.opts.MaxFailures {
				m.failures = m.failures[len(m.failures)-m.opts.MaxFailures:]
			}
		}
		return m, m.waitSettled()

	case doneMsg:
		m.done = true
		m.refresh()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) refresh() {
	m.stats = m.source.Stats()
	if m.queue != nil {
		m.running = m.queue.Running()
	}
}

// Canceled reports whether the run was canceled, from the keyboard or by
// its context.
func (m Model) Canceled() bool {
	return m.canceling || m.stats.Canceled
}

// Failures returns the most recent failed settlements, oldest first.
func (m Model) Failures() []tasks.TaskNotification {
	return m.failures
}

// Stats returns the most recently polled stats.
func (m Model) Stats() batch.Stats {
	return m.stats
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the progress view.
func (m Model) View() string {
	t := m.theme
	var b strings.Builder

	title := m.opts.Title
	if title == "" {
		title = "batch"
	}
	b.WriteString(t.Title.Render("Routing " + util.TruncateWidth(title, max(m.width-10, 10))))
	b.WriteString("\n\n")

	b.WriteString(m.progress.ViewAs(m.stats.Progress / 100))
	b.WriteString(" ")
	b.WriteString(t.Value.Render(fmt.Sprintf("%5.1f%%", m.stats.Progress)))
	b.WriteString("\n\n")

	sep := t.Separator.Render(" | ")
	counts := []string{
		t.Label.Render("settled ") + t.Value.Render(fmt.Sprintf("%d/%d", m.stats.Completed, m.stats.Total)),
		t.Label.Render("failed ") + t.Error.Render(fmt.Sprintf("%d", m.stats.Failed)),
		t.Label.Render("in flight ") + t.Running.Render(fmt.Sprintf("%d", m.stats.Running)),
		t.Label.Render("peak ") + t.Value.Render(fmt.Sprintf("%d", m.stats.Peak)),
		t.Muted.Render(time.Since(m.started).Round(100 * time.Millisecond).String()),
	}
	b.WriteString(strings.Join(counts, sep))
	b.WriteString("\n")

	if !m.done && len(m.running) > 0 {
		b.WriteString("\n")
		b.WriteString(m.viewRunning())
	}

	if len(m.failures) > 0 {
		b.WriteString("\n")
		b.WriteString(m.viewFailures())
	}

	b.WriteString("\n")
	b.WriteString(m.viewStatus())
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewRunning() string {
	t := m.theme
	var b strings.Builder

	labelWidth := max(m.width-16, 10)
	shown := m.running
	if len(shown) > m.opts.MaxRunning {
		shown = shown[:m.opts.MaxRunning]
	}
	for _, task := range shown {
		label := util.PadWidth(util.TruncateWidth(task.Label, labelWidth), labelWidth)
		elapsed := time.Since(task.StartTime).Round(100 * time.Millisecond)
		fmt.Fprintf(&b, "  %s %s %s\n", m.spinner.View(), t.Running.Render(label), t.Muted.Render(elapsed.String()))
	}
	if extra := len(m.running) - len(shown); extra > 0 {
		b.WriteString(t.Muted.Render(fmt.Sprintf("  +%d more", extra)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) viewFailures() string {
	t := m.theme
	var b strings.Builder
	width := max(m.width-6, 10)
	for _, f := range m.failures {
		line := util.TruncateWidth(f.Label+": "+f.Error, width)
		fmt.Fprintf(&b, "  %s %s\n", t.Error.Render(styles.StatusIndicators.Error), t.Muted.Render(line))
	}
	return b.String()
}

func (m Model) viewStatus() string {
	t := m.theme
	switch {
	case m.done && m.Canceled():
		return t.RenderWarning("Canceled")
	case m.done && m.stats.Failed > 0:
		return t.RenderWarning(fmt.Sprintf("Done with %d failed", m.stats.Failed))
	case m.done:
		return t.RenderSuccess("Done")
	case m.canceling:
		return t.Warning.Render("Canceling...")
	default:
		h := m.keys.Cancel.Help()
		return t.Muted.Render(h.Key + " " + h.Desc)
	}
}
