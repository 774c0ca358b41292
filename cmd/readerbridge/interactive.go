package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/client"
	"github.com/wippyai/reader-bridge/reader"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	formatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const previewLimit = 512

type interactiveModel struct {
	ctx      context.Context
	err      error
	iso      *client.Isolate
	proxy    *client.ReaderProxy
	progress *client.Progress
	changed  chan struct{}
	done     chan struct{}
	stop     context.CancelFunc
	target   string
	format   string
	result   string
	items    []itemInfo
	bar      progress.Model
	spin     spinner.Model
	selected int
	state    modelState
	loaded   bool
}

type modelState int

const (
	stateSelectItem modelState = iota
	stateFetching
	stateShowResult
)

func newInteractiveModel(ctx context.Context, iso *client.Isolate, proxy *client.ReaderProxy, target, format string) *interactiveModel {
	return &interactiveModel{
		ctx:     ctx,
		iso:     iso,
		proxy:   proxy,
		target:  target,
		format:  format,
		changed: make(chan struct{}, 1),
		bar:     progress.New(progress.WithDefaultGradient()),
		spin:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		state:   stateSelectItem,
	}
}

type loadedMsg struct {
	err   error
	items []itemInfo
}

type progressMsg struct{}

type fetchResultMsg struct {
	err    error
	result string
}

type cancelResultMsg struct {
	err error
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadItems
}

func (m *interactiveModel) loadItems() tea.Msg {
	items, err := inspect(m.ctx, m.proxy)
	return loadedMsg{err: err, items: items}
}

// waitProgress blocks until the running fetch reports a change or ends.
// Changes coalesce: the view always reads the latest state.
func (m *interactiveModel) waitProgress() tea.Cmd {
	changed, done := m.changed, m.done
	return func() tea.Msg {
		select {
		case <-changed:
			return progressMsg{}
		case <-done:
			return nil
		}
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.abort()
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectItem && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectItem && m.selected < len(m.items)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectItem:
				if len(m.items) == 0 {
					break
				}
				return m, m.startFetch()

			case stateShowResult:
				m.state = stateSelectItem
				m.result = ""
				m.err = nil
			}

		case "c":
			if m.state == stateFetching && m.progress.State().Cancellable {
				p := m.progress
				return m, func() tea.Msg {
					return cancelResultMsg{err: p.Cancel(m.ctx)}
				}
			}

		case "esc":
			if m.state == stateShowResult {
				m.state = stateSelectItem
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.items = msg.items
		m.loaded = true

	case progressMsg:
		if m.state == stateFetching {
			return m, m.waitProgress()
		}

	case spinner.TickMsg:
		if m.state == stateFetching {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}

	case cancelResultMsg:
		if msg.err != nil {
			m.err = msg.err
		}

	case fetchResultMsg:
		m.finishFetch()
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	return m, nil
}

// startFetch copies the selected item into the target folder, or reads its
// data when it has no virtual file format or no target is set.
func (m *interactiveModel) startFetch() tea.Cmd {
	it := m.items[m.selected]
	changed := m.changed
	m.progress = m.iso.NewProgress(func(client.ProgressState) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	ctx, stop := context.WithCancel(m.ctx)
	m.stop = stop
	m.done = make(chan struct{})
	m.state = stateFetching

	p := m.progress
	fetch := func() tea.Msg {
		if f := it.virtualFormat(m.format); f != "" && m.target != "" {
			path, err := m.proxy.VirtualFile(ctx, it.handle, f, m.target, p)
			return fetchResultMsg{err: err, result: fmt.Sprintf("%s -> %s", it.name, path)}
		}
		if len(it.formats) == 0 {
			return fetchResultMsg{err: fmt.Errorf("%s has no formats", it.name)}
		}
		f := it.formats[0].name
		data, err := m.proxy.Data(ctx, it.handle, f, p)
		if err != nil {
			return fetchResultMsg{err: err}
		}
		return fetchResultMsg{result: preview(f, data)}
	}
	return tea.Batch(fetch, m.waitProgress(), m.spin.Tick)
}

func (m *interactiveModel) finishFetch() {
	if m.stop != nil {
		m.stop()
		close(m.done)
		m.stop = nil
	}
	if m.progress != nil {
		m.progress.Close()
	}
}

// abort cancels a fetch still running when the user quits.
func (m *interactiveModel) abort() {
	if m.state == stateFetching && m.progress.State().Cancellable {
		m.progress.Cancel(context.Background())
	}
	m.finishFetch()
}

func (m *interactiveModel) View() string {
	if m.err != nil && !m.loaded {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if !m.loaded {
		return "Reading items..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Reader Bridge"))
	b.WriteString(" ")
	if m.target != "" {
		b.WriteString("-> " + m.target)
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectItem:
		if len(m.items) == 0 {
			b.WriteString("The reader has no items.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select an item to fetch:\n\n")
		for i, it := range m.items {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatItem(it)))
			} else {
				b.WriteString("  " + formatItem(it))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter fetch • q quit"))

	case stateFetching:
		it := m.items[m.selected]
		b.WriteString(fmt.Sprintf("Fetching %s\n\n", nameStyle.Render(it.name)))
		st := m.progress.State()
		if st.Fraction != nil {
			b.WriteString(m.bar.ViewAs(*st.Fraction))
		} else {
			b.WriteString(m.spin.View() + " working")
		}
		b.WriteString("\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Cancel failed: %v", m.err)))
			b.WriteString("\n\n")
		}
		if st.Cancellable {
			b.WriteString(helpStyle.Render("c cancel • q quit"))
		} else {
			b.WriteString(helpStyle.Render("q quit"))
		}

	case stateShowResult:
		it := m.items[m.selected]
		b.WriteString(fmt.Sprintf("Result for %s:\n\n", nameStyle.Render(it.name)))
		switch {
		case stderrors.Is(m.err, reader.ErrCanceled):
			b.WriteString(errorStyle.Render("Canceled"))
		case m.err != nil:
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		default:
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatItem(it itemInfo) string {
	var formats []string
	for _, f := range it.formats {
		s := f.name
		if f.virtual {
			s += "*"
		}
		formats = append(formats, formatStyle.Render(s))
	}
	return nameStyle.Render(it.name) + " [" + strings.Join(formats, ", ") + "]"
}

func preview(format string, data readerbridge.Value) string {
	var s string
	switch v := data.(type) {
	case string:
		s = v
	case []byte:
		return fmt.Sprintf("%s: %d bytes", format, len(v))
	case nil:
		return format + ": no data"
	default:
		s = fmt.Sprintf("%v", v)
	}
	if len(s) > previewLimit {
		cut := previewLimit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "…"
	}
	return format + ":\n\n" + s
}

func runInteractive(ctx context.Context, iso *client.Isolate, proxy *client.ReaderProxy, target, format string) error {
	p := tea.NewProgram(newInteractiveModel(ctx, iso, proxy, target, format), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if stderrors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
