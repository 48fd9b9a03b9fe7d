// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/shared"
)

// MockService is a configurable test double for services.Service.
//
// Playlists are served from Exports keyed by playlist ID. Search results are keyed by "title|artist".
type MockService struct {
	mu sync.Mutex

	ServiceName  string
	ProviderID   models.Provider
	User         *models.Account
	Playlists    []models.Playlist
	Exports      map[string]*models.PlaylistExport
	Results      map[string]*models.Track
	ImportResult *models.Playlist

	AuthErr      error
	PlaylistsErr error
	ExportErr    error
	ImportErr    error
	SearchErr    error

	Imported    []*models.PlaylistExport
	Searches    []string
	ExportCalls int
}

func (m *MockService) Authenticate(ctx context.Context, credentials map[string]string) error {
	return m.AuthErr
}

func (m *MockService) CurrentUser(ctx context.Context) (*models.Account, error) {
	if m.AuthErr != nil {
		return nil, m.AuthErr
	}
	if m.User != nil {
		return m.User, nil
	}
	return models.NewAccount(m.Provider(), "mock-user", "mock"), nil
}

func (m *MockService) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	if m.PlaylistsErr != nil {
		return nil, m.PlaylistsErr
	}
	return m.Playlists, nil
}

func (m *MockService) GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	if export, ok := m.Exports[playlistID]; ok {
		return &export.Playlist, nil
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
}

func (m *MockService) ExportPlaylist(ctx context.Context, playlistID string) (*models.PlaylistExport, error) {
	m.mu.Lock()
	m.ExportCalls++
	m.mu.Unlock()

	if m.ExportErr != nil {
		return nil, m.ExportErr
	}
	if export, ok := m.Exports[playlistID]; ok {
		return export, nil
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
}

func (m *MockService) ImportPlaylist(ctx context.Context, playlist *models.PlaylistExport) (*models.Playlist, error) {
	m.mu.Lock()
	m.Imported = append(m.Imported, playlist)
	m.mu.Unlock()

	if m.ImportErr != nil {
		return nil, m.ImportErr
	}
	if m.ImportResult != nil {
		return m.ImportResult, nil
	}
	pl := playlist.Playlist
	pl.ID = "imported-" + shared.NormalizeText(pl.Name)
	pl.TrackCount = len(playlist.Tracks)
	return &pl, nil
}

func (m *MockService) SearchTrack(ctx context.Context, want models.Track) (*models.Track, error) {
	key := want.Title + "|" + want.Artist
	m.mu.Lock()
	m.Searches = append(m.Searches, key)
	m.mu.Unlock()

	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	if track, ok := m.Results[key]; ok {
		return track, nil
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, key)
}

func (m *MockService) Name() string {
	if m.ServiceName == "" {
		return "mock"
	}
	return m.ServiceName
}

func (m *MockService) Provider() models.Provider {
	if m.ProviderID == "" {
		return models.Spotify
	}
	return m.ProviderID
}

// SearchCount returns the number of SearchTrack calls.
func (m *MockService) SearchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Searches)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
