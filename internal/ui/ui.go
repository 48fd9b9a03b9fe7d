package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/selection"
	"github.com/desertthunder/sonikswap/internal/services"
	"github.com/desertthunder/sonikswap/internal/shared"
	"github.com/desertthunder/sonikswap/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlaylistListView ViewState = iota
	TrackListView
	ConfirmView
	TransferView
	ResultView
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	confirmLimit  = 10
)

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	view   ViewState
	source services.Service
	dest   services.Service
	engine *tasks.PlaylistEngine
	logger *log.Logger
	store  *selection.Store[models.Track]

	width          int
	height         int
	playlistsReady bool
	playlistList   list.Model
	trackList      list.Model
	playlist       *models.PlaylistExport
	pending        []models.Track
	loading        bool
	status         string

	progressChan <-chan tasks.ProgressUpdate
	done         <-chan Msg
	progress     tasks.ProgressUpdate
	result       *tasks.TransferRunResult
	transferErr  error
	err          error

	spinner spinner.Model
	help    help.Model
	keys    keyMap
}

// NewModel creates a new TUI model that transfers from source to dest.
func NewModel(ctx context.Context, source, dest services.Service, engine *tasks.PlaylistEngine, logger *log.Logger) *Model {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	m := &Model{
		ctx:     ctx,
		view:    PlaylistListView,
		source:  source,
		dest:    dest,
		engine:  engine,
		logger:  logger,
		store:   selection.New(models.TrackKey),
		width:   defaultWidth,
		height:  defaultHeight,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.ok)),
		help:    help.New(),
		keys:    newKeyMap(),
		loading: true,
	}
	m.store.Subscribe(func(s selection.Snapshot[models.Track]) {
		m.logger.Debug("selection changed", "selected", s.Count, "tracks", len(s.Items))
	})
	return m
}

// Run starts the bubbletea program on the alternate screen and blocks until it exits.
func Run(ctx context.Context, m *Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// Init initializes the TUI by fetching playlists from the source service.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchPlaylists())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLists()
		return m, nil

	case spinner.TickMsg:
		if !m.loading && m.view != TransferView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.err != nil {
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		}
		switch m.view {
		case PlaylistListView:
			return m.handlePlaylistListKeys(msg)
		case TrackListView:
			return m.handleTrackListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case TransferView:
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgPlaylistsFetched:
		data := msg.data.(playlistsPayload)
		m.loading = false
		if data.err != nil {
			m.err = data.err
			m.logger.Error("failed to fetch playlists", "service", m.source.Name(), "err", data.err)
			return m, nil
		}
		items := make([]list.Item, len(data.playlists))
		for i, pl := range data.playlists {
			items[i] = playlistItem{playlist: pl}
		}
		m.playlistList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.playlistList.Title = fmt.Sprintf("%s Playlists", m.source.Name())
		m.playlistsReady = true
		m.resizeLists()
		return m, nil

	case MsgTracksFetched:
		data := msg.data.(tracksPayload)
		m.loading = false
		if data.err != nil {
			m.status = fmt.Sprintf("Failed to load tracks: %v", data.err)
			m.logger.Error("failed to fetch tracks", "err", data.err)
			return m, nil
		}
		m.status = ""
		m.openPlaylist(data.playlist)
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, waitForProgress(m.progressChan, m.done)

	case MsgTransferComplete:
		data := msg.data.(transferPayload)
		m.result = data.result
		m.transferErr = data.err
		m.progressChan = nil
		m.done = nil
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// openPlaylist loads export into the selection store and shows its tracks.
func (m *Model) openPlaylist(export *models.PlaylistExport) {
	m.playlist = export
	m.store.Initialize(export.Tracks)

	items := make([]list.Item, len(export.Tracks))
	for i, track := range export.Tracks {
		items[i] = trackItem{track: track, selected: m.store.IsSelected}
	}
	m.trackList = list.New(items, list.NewDefaultDelegate(), 0, 0)
	m.trackList.Title = fmt.Sprintf("%s • %s", export.Playlist.Name, m.source.Name())
	m.resizeLists()
	m.view = TrackListView
}

func (m *Model) resizeLists() {
	w, h := max(m.width-4, 20), max(m.height-8, 5)
	if m.playlistsReady {
		m.playlistList.SetSize(w, h)
	}
	if m.playlist != nil {
		m.trackList.SetSize(w, h)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case PlaylistListView:
		return m.renderPlaylistList()
	case TrackListView:
		return m.renderTrackList()
	case ConfirmView:
		return m.renderConfirm()
	case TransferView:
		return m.renderTransfer()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handlePlaylistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.playlistsReady {
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		return m, nil
	}
	if m.playlistList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.playlistList, cmd = m.playlistList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if m.loading {
			return m, nil
		}
		if pl, ok := m.playlistList.SelectedItem().(playlistItem); ok {
			if m.playlist != nil && m.playlist.Playlist.ID == pl.playlist.ID {
				m.view = TrackListView
				return m, nil
			}
			m.loading = true
			m.status = fmt.Sprintf("Loading %s...", pl.playlist.Name)
			return m, tea.Batch(m.fetchTracks(pl.playlist.ID), m.spinner.Tick)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) handleTrackListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.trackList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.trackList, cmd = m.trackList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggle):
		if item, ok := m.trackList.SelectedItem().(trackItem); ok {
			m.store.Toggle(item.track.Key())
		}
		return m, nil
	case key.Matches(msg, m.keys.selectAll):
		m.store.SelectAll()
		return m, nil
	case key.Matches(msg, m.keys.back):
		switch {
		case m.store.SelectedCount() > 0:
			m.store.SetSelection(selection.Set{})
		case m.trackList.FilterState() == list.FilterApplied:
			m.trackList.ResetFilter()
		default:
			m.view = PlaylistListView
		}
		return m, nil
	case key.Matches(msg, m.keys.transfer):
		if len(m.store.Items()) == 0 {
			m.status = "Playlist has no tracks"
			return m, nil
		}
		m.pending = m.transferTracks()
		m.view = ConfirmView
		return m, nil
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

// transferTracks returns the selected tracks, or every track when nothing is selected.
func (m *Model) transferTracks() []models.Track {
	if m.store.SelectedCount() == 0 {
		return m.store.Items()
	}
	return m.store.SelectedItems()
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	case key.Matches(msg, m.keys.no), msg.String() == "q":
		m.pending = nil
		m.view = TrackListView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		m.view = TransferView
		m.progress = tasks.ProgressUpdate{}
		return m, tea.Batch(m.startTransfer(), m.spinner.Tick)
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		if m.transferErr == nil {
			m.store.SetSelection(selection.Set{})
		}
		m.view = PlaylistListView
		m.pending = nil
		m.result = nil
		m.transferErr = nil
		m.status = ""
		return m, nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case PlaylistListView:
		if m.playlistsReady {
			m.playlistList, cmd = m.playlistList.Update(msg)
		}
	case TrackListView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchPlaylists() tea.Cmd {
	ctx, source := m.ctx, m.source
	return func() tea.Msg {
		playlists, err := source.GetPlaylists(ctx)
		return playlistsFetchedMsg(playlists, err)
	}
}

func (m *Model) fetchTracks(playlistID string) tea.Cmd {
	ctx, source := m.ctx, m.source
	return func() tea.Msg {
		playlist, err := source.ExportPlaylist(ctx, playlistID)
		return tracksFetchedMsg(playlist, err)
	}
}

func (m *Model) startTransfer() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan Msg, 1)
	m.progressChan = progress
	m.done = done

	ctx, engine := m.ctx, m.engine
	req := tasks.TransferRequest{
		Source:   m.source,
		Dest:     m.dest,
		Export:   m.playlist,
		SourceID: m.playlist.Playlist.ID,
		Selected: m.pending,
	}
	m.logger.Info("starting transfer", "playlist", req.SourceID, "tracks", len(req.Selected), "to", m.dest.Name())

	go func() {
		result, err := engine.Transfer(ctx, req, progress)
		done <- transferCompleteMsg(result, err)
		close(progress)
	}()

	return waitForProgress(progress, done)
}

// waitForProgress relays the next progress update, then the completion message once progress closes.
func waitForProgress(progress <-chan tasks.ProgressUpdate, done <-chan Msg) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-progress
		if !ok {
			return <-done
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderPlaylistList() string {
	if !m.playlistsReady {
		return fmt.Sprintf("%s Fetching playlists from %s...", m.spinner.View(), m.source.Name())
	}

	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	status := ""
	if m.loading {
		status = fmt.Sprintf("\n%s %s", m.spinner.View(), m.status)
	} else if m.status != "" {
		status = "\n" + styles.err.Render(m.status)
	}
	return fmt.Sprintf("%s%s\n\n%s", m.playlistList.View(), status, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderTrackList() string {
	bar := styles.action.Render(actionLabel(m.store.SelectedCount(), len(m.store.Items())))
	if m.status != "" {
		bar = fmt.Sprintf("%s  %s", bar, styles.warn.Render(m.status))
	}

	helpKeys := []key.Binding{m.keys.toggle, m.keys.selectAll, m.keys.transfer, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n\n%s", m.trackList.View(), bar, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderConfirm() string {
	var b strings.Builder

	b.WriteString(styles.title.Render(fmt.Sprintf("Transfer to %s?", m.dest.Name())))
	fmt.Fprintf(&b, "\nPlaylist: %s\n", m.playlist.Playlist.Name)
	if len(m.pending) == len(m.store.Items()) {
		fmt.Fprintf(&b, "Tracks: all %d\n\n", len(m.pending))
	} else {
		fmt.Fprintf(&b, "Tracks: %d of %d selected\n\n", len(m.pending), len(m.store.Items()))
	}

	for i, track := range m.pending {
		if i == confirmLimit {
			fmt.Fprintf(&b, "  ... and %d more\n", len(m.pending)-confirmLimit)
			break
		}
		fmt.Fprintf(&b, "  • %s - %s\n", track.Artist, track.Title)
	}

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.quit}
	fmt.Fprintf(&b, "\n%s", m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderTransfer() string {
	title := styles.title.Render(fmt.Sprintf("Transferring to %s", m.dest.Name()))

	var phase string
	switch m.progress.Phase {
	case tasks.FetchSource:
		phase = "Preparing tracks..."
	case tasks.SearchTracks:
		phase = fmt.Sprintf("Searching tracks (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.CreatePlaylist:
		phase = fmt.Sprintf("Creating playlist on %s...", m.dest.Name())
	default:
		phase = "Processing..."
	}

	return fmt.Sprintf("%s\n\n%s %s\n%s", title, m.spinner.View(), phase, styles.help.Render(m.progress.Message))
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit})

	if m.transferErr != nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("Transfer failed: %v", m.transferErr)), helpView)
	}
	if m.result == nil || m.result.DestPlaylist == nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render("No result available"), helpView)
	}

	title := styles.ok.Render("✓ Transfer Complete!")
	info := fmt.Sprintf(
		"\nSource: %s (%d tracks)\nDestination: %s on %s\nSuccess rate: %d/%d (%.1f%%)",
		m.result.SourcePlaylist.Playlist.Name,
		m.result.TotalTracks,
		m.result.DestPlaylist.Name,
		m.dest.Name(),
		m.result.SuccessCount,
		m.result.TotalTracks,
		m.result.MatchPercentage,
	)

	var failed string
	if m.result.FailedCount > 0 {
		failed = fmt.Sprintf("\n\n%s", styles.warn.Render(fmt.Sprintf("Failed to match %d tracks:", m.result.FailedCount)))
		for _, match := range m.result.TrackMatches {
			if match.Error != nil {
				failed += fmt.Sprintf("\n  • %s - %s", match.Original.Artist, match.Original.Title)
			}
		}
	}

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, failed, helpView)
}
