// Package ui provides the terminal interface of the karaoke player.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/soulrrrrr/karaoke-app/internal/audio"
	"github.com/soulrrrrr/karaoke-app/internal/backend"
	"github.com/soulrrrrr/karaoke-app/internal/lyrics"
	kmodel "github.com/soulrrrrr/karaoke-app/internal/model"
	"github.com/soulrrrrr/karaoke-app/internal/queue"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied!"
	ellipsis             = "…"
)

// Queue is the queue manager as driven by the interface.
type Queue interface {
	Items() []kmodel.QueueItem
	CurrentIndex() int
	Enqueue(ctx context.Context, videoID, title, artist string) (kmodel.QueueItem, error)
	SwitchTo(ctx context.Context, index int) error
	Remove(ctx context.Context, index int) error
	Retry(ctx context.Context, index int) error
}

// Player is the playback controller as driven by the interface.
type Player interface {
	Toggle() error
	Nudge(delta float64) error
	Seek(fraction float64) error
	SetVolume(v float64) error
	ToggleMute() error
	Volume() float64
	Position() float64
	Duration() float64
	Paused() bool
}

// Searcher finds the best match for a query.
type Searcher interface {
	First(ctx context.Context, query string) (backend.SearchResult, error)
}

// Services are the components the interface drives.
type Services struct {
	Queue  Queue
	Player Player
	Search Searcher
}

// Messages delivered by the application while the program runs.
type (
	// QueueMsg reports a queue change.
	QueueMsg queue.Event
	// PlaybackMsg reports an audio output event.
	PlaybackMsg audio.Event
)

// LyricsMsg carries the lyric view of the sheet loaded for Slot.
type LyricsMsg struct {
	Slot string
	View lyrics.View
}

// NewProgram returns a new Tea program.
func NewProgram(ctx context.Context, cfg Config, svc Services) *tea.Program {
	log.Debug("Starting karaoke", "mouse", cfg.EnableMouse, "glamour_style", cfg.GlamourStyle)

	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(ctx, cfg, svc), opts...)
}

type (
	tickMsg                 time.Time
	statusMessageTimeoutMsg struct{}
	helpRenderedMsg         string

	enqueuedMsg struct {
		query     string
		item      kmodel.QueueItem
		searchErr error
		loadErr   error
	}

	// opDoneMsg reports a queue operation. Foreground failures block the
	// screen until dismissed.
	opDoneMsg struct {
		op         string
		err        error
		foreground bool
	}
)

// focus is the part of the screen receiving keys.
type focus int

const (
	focusQueue focus = iota
	focusSearch
	focusFilter
)

// Common stuff we'll need to access in all views.
type commonModel struct {
	cfg    Config
	width  int
	height int
}

type model struct {
	common *commonModel
	ctx    context.Context
	svc    Services
	focus  focus

	// banner is a foreground failure shown until a key is pressed.
	banner error

	search    textinput.Model
	filter    textinput.Model
	searching bool

	items   []kmodel.QueueItem
	current int
	cursor  int

	// Loaded song
	slot     string
	title    string
	artist   string
	lines    []lyrics.Line
	view     lyrics.View
	noLyrics bool

	position float64
	duration float64
	paused   bool
	volume   float64

	lyricsPane viewport.Model
	spinner    spinner.Model
	spinning   bool
	progress   progress.Model

	showHelp bool
	helpText string

	statusMessage      string
	statusIsError      bool
	statusMessageTimer *time.Timer
}

func newModel(ctx context.Context, cfg Config, svc Services) model {
	search := textinput.New()
	search.Placeholder = "Search for a song…"
	search.Prompt = "Search: "
	search.CharLimit = 200

	filter := textinput.New()
	filter.Prompt = "/"

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = spinnerStyle

	m := model{
		common:     &commonModel{cfg: cfg},
		ctx:        ctx,
		svc:        svc,
		search:     search,
		filter:     filter,
		current:    -1,
		paused:     true,
		volume:     svc.Player.Volume(),
		view:       lyrics.View{Active: -1},
		lyricsPane: viewport.New(0, 0),
		spinner:    sp,
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
	m.refreshQueue()
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.tick()}
	if m.needsSpinner() {
		cmds = append(cmds, m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		// A foreground error swallows the next key.
		if m.banner != nil {
			m.banner = nil
			return m, nil
		}
		return m.handleKey(msg)

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.common.width = msg.Width
		m.common.height = msg.Height
		m.setSize()
		if m.showHelp {
			cmds = append(cmds, renderHelp(m.common.cfg.GlamourStyle, msg.Width))
		}

	case QueueMsg:
		m.refreshQueue()
		m.current = msg.Current
		switch msg.Kind {
		case queue.EventLoaded:
			m.loadSong(msg.Item)
		case queue.EventCleared:
			m.unloadSong()
		case queue.EventChanged:
			if msg.Item.Slot != "" && msg.Item.Slot == m.slot && len(m.lines) == 0 && msg.Item.Lyrics.HasLines() {
				m.loadSong(msg.Item)
			}
		}
		if !m.spinning && m.needsSpinner() {
			m.spinning = true
			cmds = append(cmds, m.spinner.Tick)
		}

	case LyricsMsg:
		// Views computed for a previous sheet are dropped.
		if msg.Slot == m.slot && len(msg.View.Lines) == len(m.lines) {
			m.view = msg.View
			m.renderLyrics()
		}

	case PlaybackMsg:
		switch msg.Type {
		case audio.EventPlay:
			m.paused = false
		case audio.EventPause, audio.EventEnded:
			m.paused = true
		}
		m.position = msg.Position
		if msg.Duration > 0 {
			m.duration = msg.Duration
		}

	case tickMsg:
		m.syncPlayback()
		cmds = append(cmds, m.tick())

	case spinner.TickMsg:
		if !m.needsSpinner() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case enqueuedMsg:
		m.searching = false
		switch {
		case errors.Is(msg.searchErr, backend.ErrNotFound):
			cmds = append(cmds, m.showStatusMessage("No songs found", true))
		case msg.searchErr != nil:
			log.Error("Error searching", "query", msg.query, "err", msg.searchErr)
			cmds = append(cmds, m.showStatusMessage("Search failed: "+msg.searchErr.Error(), true))
		case msg.loadErr != nil:
			m.banner = fmt.Errorf("Error loading song: %w", msg.loadErr)
		default:
			cmds = append(cmds, m.showStatusMessage("Added "+msg.item.Title, false))
		}

	case opDoneMsg:
		if msg.err != nil {
			if msg.foreground {
				m.banner = fmt.Errorf("Error loading song: %w", msg.err)
			} else {
				cmds = append(cmds, m.showStatusMessage(msg.op+" failed: "+msg.err.Error(), true))
			}
		}

	case helpRenderedMsg:
		m.helpText = string(msg)
		m.setSize()

	case statusMessageTimeoutMsg:
		m.statusMessage = ""
		m.statusIsError = false
	}

	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.focus {
	case focusSearch:
		return m.handleSearchKey(msg)
	case focusFilter:
		return m.handleFilterKey(msg)
	}

	var cmd tea.Cmd
	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "tab", "s", "i":
		m.focus = focusSearch
		return m, m.search.Focus()

	case "/":
		m.focus = focusFilter
		m.filter.SetValue("")
		return m, m.filter.Focus()

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case "enter":
		if m.cursor < len(m.items) {
			cmd = switchCmd(m.ctx, m.svc.Queue, m.cursor)
		}
	case "d", "delete":
		if m.cursor < len(m.items) {
			cmd = removeCmd(m.ctx, m.svc.Queue, m.cursor)
		}
	case "r":
		if m.cursor < len(m.items) {
			cmd = retryCmd(m.ctx, m.svc.Queue, m.cursor)
		}

	case " ":
		cmd = m.transport("Play", m.svc.Player.Toggle)
	case "left":
		cmd = m.transport("Seek", func() error { return m.svc.Player.Nudge(-audio.NudgeStep) })
	case "right":
		cmd = m.transport("Seek", func() error { return m.svc.Player.Nudge(audio.NudgeStep) })
	case "[":
		cmd = m.transport("Seek", func() error { return m.svc.Player.Seek(m.fraction() - m.common.cfg.SeekStep) })
	case "]":
		cmd = m.transport("Seek", func() error { return m.svc.Player.Seek(m.fraction() + m.common.cfg.SeekStep) })
	case "+", "=":
		cmd = m.transport("Volume", func() error { return m.svc.Player.SetVolume(m.volume + m.common.cfg.VolumeStep) })
	case "-", "_":
		cmd = m.transport("Volume", func() error { return m.svc.Player.SetVolume(m.volume - m.common.cfg.VolumeStep) })
	case "m":
		cmd = m.transport("Mute", m.svc.Player.ToggleMute)

	case "y":
		cmd = m.copyCurrent()

	case "?":
		m.showHelp = !m.showHelp
		m.setSize()
		if m.showHelp && m.helpText == "" {
			cmd = renderHelp(m.common.cfg.GlamourStyle, m.common.width)
		}
	}

	return m, cmd
}

func (m model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "tab":
		m.focus = focusQueue
		m.search.Blur()
		return m, nil
	case "enter":
		query := strings.TrimSpace(m.search.Value())
		if query == "" || m.searching {
			return m, nil
		}
		m.searching = true
		m.search.SetValue("")
		return m, searchCmd(m.ctx, m.svc, query)
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "enter":
		m.focus = focusQueue
		m.filter.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	if idx := fuzzyJump(m.items, m.filter.Value()); idx >= 0 {
		m.cursor = idx
	}
	return m, cmd
}

// transport runs a playback control and refreshes the transport state.
func (m *model) transport(op string, fn func() error) tea.Cmd {
	err := fn()
	m.syncPlayback()
	if err != nil {
		log.Warn("Playback control failed", "op", op, "err", err)
		return m.showStatusMessage(op+" failed: "+err.Error(), true)
	}
	return nil
}

func (m *model) syncPlayback() {
	p := m.svc.Player
	m.position = p.Position()
	m.duration = p.Duration()
	m.paused = p.Paused()
	m.volume = p.Volume()
}

func (m model) fraction() float64 {
	if m.duration <= 0 {
		return 0
	}
	return m.position / m.duration
}

func (m *model) refreshQueue() {
	m.items = m.svc.Queue.Items()
	m.current = m.svc.Queue.CurrentIndex()
	if m.cursor >= len(m.items) {
		m.cursor = max(0, len(m.items)-1)
	}
}

func (m *model) loadSong(item kmodel.QueueItem) {
	m.slot = item.Slot
	m.title = item.Title
	m.artist = item.Artist
	m.lines = nil
	m.noLyrics = !item.Lyrics.HasLines()
	if !m.noLyrics {
		m.lines = item.Lyrics.SyncedLyrics
	}
	m.view = lyrics.Classify(m.lines, 0)
	m.renderLyrics()
}

func (m *model) unloadSong() {
	m.slot, m.title, m.artist = "", "", ""
	m.lines = nil
	m.noLyrics = false
	m.view = lyrics.View{Active: -1}
	m.position, m.duration = 0, 0
	m.renderLyrics()
}

func (m model) needsSpinner() bool {
	for _, it := range m.items {
		if it.Status == kmodel.StatusLoading {
			return true
		}
	}
	return false
}

func (m *model) showStatusMessage(msg string, isError bool) tea.Cmd {
	m.statusMessage = msg
	m.statusIsError = isError
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)
	return waitForStatusMessageTimeout(m.statusMessageTimer)
}

func (m model) tick() tea.Cmd {
	interval := m.common.cfg.RefreshInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) View() string {
	if m.banner != nil {
		return errorView(m.banner, false)
	}

	var b strings.Builder
	fmt.Fprintln(&b, m.headerView())
	fmt.Fprintln(&b, m.lyricsPane.View())
	fmt.Fprintln(&b, m.transportView())
	fmt.Fprint(&b, m.queueView())
	fmt.Fprintln(&b, m.inputView())
	m.statusBarView(&b)

	if m.showHelp && m.helpText != "" {
		fmt.Fprint(&b, "\n"+m.helpText)
	}
	return b.String()
}

func (m model) inputView() string {
	switch {
	case m.focus == focusFilter:
		return m.filter.View()
	case m.searching:
		return m.spinner.View() + " Searching…"
	default:
		return m.search.View()
	}
}

func errorView(err error, fatal bool) string {
	exitMsg := "press any key to "
	if fatal {
		exitMsg += "exit"
	} else {
		exitMsg += "return"
	}
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle.Render("ERROR"),
		err,
		subtleStyle.Render(exitMsg),
	)
	return "\n" + indent(s, 3)
}

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
