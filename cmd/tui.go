// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/Thermoquad/cardiostat/internal/stream"
	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

const (
	// Raw samples kept for the trace
	traceLength = 512
	// How often queued frames are handed to the TUI
	batchInterval = 50 * time.Millisecond
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// TUI model
type model struct {
	connInfo       string
	statsInterval  int
	showAll        bool
	stats          *bmd101.Statistics
	errorLog       []errorLogEntry
	maxLogEntries  int
	synchronized   bool
	presync        int
	connectionLost bool
	trace          []int16
	spinner        spinner.Model
	width          int
	height         int
	quitting       bool
}

// Messages
type tickMsg time.Time

type frameMsg struct {
	frame            *bmd101.Frame
	validationErrors []bmd101.ValidationError
}

type syncMsg struct {
	faults int
}

type batchMsg struct {
	frames []frameMsg
	faults []bmd101.Event
	sync   *syncMsg
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

func initialModel(statsInterval int, showAll bool) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	return model{
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         bmd101.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		trace:         make([]int16, 0, traceLength),
		spinner:       s,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case spinner.TickMsg:
		if m.synchronized && !m.connectionLost {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case batchMsg:
		if msg.sync != nil {
			m.synchronized = true
			m.presync = msg.sync.faults
			if msg.sync.faults > 0 {
				m.addLogEntry(fmt.Sprintf("Synchronized after discarding %d faults", msg.sync.faults), false)
			} else {
				m.addLogEntry("Synchronized", false)
			}
		}
		for _, ev := range msg.faults {
			m.stats.RecordEvent(ev)
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %s", ev), true)
		}
		for _, data := range msg.frames {
			m.processFrame(data)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.synchronized = false
		m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)
		return m, m.spinner.Tick

	case reconnectedMsg:
		wasLost := m.connectionLost
		m.connectionLost = false
		m.connInfo = msg.connInfo
		if wasLost {
			m.addLogEntry("Reconnected", false)
		}
	}

	return m, nil
}

func (m *model) processFrame(data frameMsg) {
	m.stats.RecordFrame(data.frame, data.validationErrors)
	m.pushSamples(data.frame.RawSamples())

	if len(data.validationErrors) > 0 {
		for _, err := range data.validationErrors {
			m.addLogEntry(fmt.Sprintf("frame #%d: %s", data.frame.Seq(), err.Message), true)
		}
	} else if m.showAll {
		m.addLogEntry(fmt.Sprintf("frame #%d, %d rows (valid)", data.frame.Seq(), len(data.frame.Rows())), false)
	}
}

func (m *model) pushSamples(samples []int16) {
	m.trace = append(m.trace, samples...)
	if len(m.trace) > traceLength {
		m.trace = m.trace[len(m.trace)-traceLength:]
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// sparkline renders samples as one line of block characters, width
// columns wide. Each column shows the mean of its share of the samples.
func sparkline(samples []int16, width int) string {
	if len(samples) == 0 || width <= 0 {
		return ""
	}
	if width > len(samples) {
		width = len(samples)
	}

	cols := make([]float64, width)
	for c := range cols {
		start := c * len(samples) / width
		end := (c + 1) * len(samples) / width
		var sum float64
		for _, s := range samples[start:end] {
			sum += float64(s)
		}
		cols[c] = sum / float64(end-start)
	}

	lo, hi := cols[0], cols[0]
	for _, v := range cols {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	var b strings.Builder
	for _, v := range cols {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkLevels)-1))
		}
		b.WriteRune(sparkLevels[idx])
	}
	return b.String()
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	traceStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("CARDIOSTAT - ERROR DETECTION"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Press 'q' to quit",
		m.connInfo, func() string {
			if m.showAll {
				return "All frames"
			}
			return "Errors only"
		}())))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.connectionLost:
		s.WriteString(m.spinner.View())
		s.WriteString(errorStyle.Render(" Connection lost, reconnecting..."))
	case !m.synchronized:
		s.WriteString(m.spinner.View())
		s.WriteString(warningStyle.Render(" Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.presync > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (discarded %d faults)", m.presync)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	m.stats.CalculateRates()
	var validPercent, errorPercent float64
	totalErrors := m.stats.ErrorCount()
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
		errorPercent = float64(totalErrors) * 100.0 / float64(m.stats.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
	))

	if m.stats.ChecksumErrors > 0 || m.stats.UnknownCodes > 0 || m.stats.SyncLosses > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Checksum:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.ChecksumErrors)),
			statsLabelStyle.Render("Unknown Codes:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.UnknownCodes)),
			statsLabelStyle.Render("Sync Lost:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.SyncLosses)),
		))
	}

	if m.stats.AnomalousValues > 0 || m.stats.LengthMismatches > 0 || m.stats.SensorOff > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d)\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.AnomalousValues)),
			headerStyle.Render("length mismatches"), m.stats.LengthMismatches,
			headerStyle.Render("sensor off"), m.stats.SensorOff,
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f/s", m.stats.FrameRate)),
		statsLabelStyle.Render("Sample Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f/s", m.stats.SampleRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Vitals (only shown once a value or sample arrived)
	if m.stats.HasHeartRate || m.stats.HasSignalQuality || len(m.trace) > 0 {
		s.WriteString(statsLabelStyle.Render("Vitals:"))
		s.WriteString("\n")

		vitals := strings.Builder{}
		heartRate := "--"
		if m.stats.HasHeartRate {
			heartRate = fmt.Sprintf("%d BPM", m.stats.HeartRate)
		}
		quality := "--"
		if m.stats.HasSignalQuality {
			quality = fmt.Sprintf("%d (%s)", m.stats.SignalQuality, bmd101.FormatSignalQuality(m.stats.SignalQuality))
		}
		vitals.WriteString(fmt.Sprintf("%s %s   %s %s",
			statsLabelStyle.Render("Heart Rate:"), statsValueStyle.Render(heartRate),
			statsLabelStyle.Render("Signal:"), statsValueStyle.Render(quality),
		))
		if len(m.trace) > 0 {
			vitals.WriteString("\n")
			vitals.WriteString(traceStyle.Render(sparkline(m.trace, m.width-8)))
		}

		s.WriteString(boxStyle.Render(vitals.String()))
		s.WriteString("\n\n")
	}

	// Error log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 18 // Reserve space for header, stats and vitals
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

// tuiEvent is a frame or a fault queued for the next batch
type tuiEvent struct {
	frame *frameMsg
	fault bmd101.Event
	sync  *syncMsg
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := initialModel(statsInterval, showAll)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	// The alternate screen belongs to the TUI
	obs := newStreamObserver()
	obs.logger = zap.NewNop()

	events := make(chan tuiEvent, 256)
	queue := func(ev tuiEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	sess := newSession(appConfig, reconnect)
	sess.logger = zap.NewNop()
	sess.onConnected = func(connInfo string) {
		obs.resync()
		p.Send(reconnectedMsg{connInfo: connInfo})
	}
	sess.onLost = func(err error) {
		p.Send(connectionLostMsg{err: err})
	}

	sessErr := make(chan error, 1)
	go func() {
		sessErr <- sess.run(ctx, func(ctx context.Context, conn Connection, _ string) error {
			opts := append(obs.options(), stream.WithFaultHook(func(ev bmd101.Event) {
				synced := obs.synchronized
				obs.fault(ev)
				if synced {
					queue(tuiEvent{fault: ev})
				}
			}))

			pump := stream.New(conn, opts...)
			return pump.Run(ctx, func(_ context.Context, f *bmd101.Frame) error {
				errs, first := obs.frame(f)
				if first {
					queue(tuiEvent{sync: &syncMsg{faults: obs.presync}})
				}
				queue(tuiEvent{frame: &frameMsg{frame: f, validationErrors: errs}})
				return nil
			})
		})
		// Nothing left to show
		p.Quit()
	}()

	// Batch sender - at 512 samples per second a message per frame would
	// swamp the renderer
	go func() {
		ticker := time.NewTicker(batchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if batch, ok := drainEvents(events); ok {
					p.Send(batch)
				}
			}
		}
	}()

	_, err := p.Run()
	cancel()
	if err != nil && !isCancel(err) && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}

	select {
	case err := <-sessErr:
		return err
	default:
		return nil
	}
}

// drainEvents collects every queued event into one batch
func drainEvents(events <-chan tuiEvent) (batchMsg, bool) {
	var batch batchMsg
	for {
		select {
		case ev := <-events:
			switch {
			case ev.sync != nil:
				batch.sync = ev.sync
			case ev.frame != nil:
				batch.frames = append(batch.frames, *ev.frame)
			default:
				batch.faults = append(batch.faults, ev.fault)
			}
		default:
			return batch, batch.sync != nil || len(batch.frames) > 0 || len(batch.faults) > 0
		}
	}
}
