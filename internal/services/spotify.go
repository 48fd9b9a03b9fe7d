// Spotify API implementation of [Service]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	spotifyPageSize  = 50
	spotifyTrackPage = 100
	spotifyAddBatch  = 100
	spotifySearchMax = 10
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Product     string `json:"product"` // premium, free, etc.
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	ExternalIDs externalIDs     `json:"external_ids"`
	URI         string          `json:"uri"`
	IsLocal     bool            `json:"is_local"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Owner is the user that owns a playlist.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type playlistTracksRef struct {
	Total int `json:"total"`
}

// SpotifyPlaylist represents a playlist object as returned in lists and by GET /playlists/{id}.
type SpotifyPlaylist struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Owner        Owner             `json:"owner"`
	Public       bool              `json:"public"`
	Tracks       playlistTracksRef `json:"tracks"`
	ExternalURLs externalURLs      `json:"external_urls"`
	URI          string            `json:"uri"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
// Track is nil for episodes and removed items.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPage is a paginated Spotify response.
type SpotifyPage[T any] struct {
	Items  []T     `json:"items"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Next   *string `json:"next"`
}

// SpotifyService implements the Service interface for Spotify API interactions.
// Uses [oauth2] for authentication and provides methods for playlist and track operations.
type SpotifyService struct {
	config      *oauth2.Config
	baseURL     string
	base        *http.Client
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	limiter     *rate.Limiter
	minScore    float64
	user        *SpotifyUser

	onTokenRefresh func(*oauth2.Token)
}

// refreshableTokenSource reports every new access token to callback.
type refreshableTokenSource struct {
	mu       sync.Mutex
	source   oauth2.TokenSource
	callback func(*oauth2.Token)
	last     string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	tok, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := tok.AccessToken != r.last
	r.last = tok.AccessToken
	r.mu.Unlock()

	if changed && r.callback != nil {
		r.callback(tok)
	}
	return tok, nil
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string, opts ...Option) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}

	o := buildOptions(spotifyBaseURL, spotifyAuthURL, spotifyTokenURL, opts)

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-read-private",
			"user-read-email",
			"playlist-read-private",
			"playlist-read-collaborative",
			"playlist-modify-public",
			"playlist-modify-private",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  o.authURL,
			TokenURL: o.tokenURL,
		},
	}

	return &SpotifyService{
		config:   config,
		baseURL:  o.baseURL,
		base:     o.httpClient,
		limiter:  o.limiter(),
		minScore: o.minScore,
	}, nil
}

// Authenticate restores a Spotify session. Expects either an "access_token" or "auth_code" in credentials.
//
// When a refresh token is present, expired access tokens are refreshed transparently.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if tok, ok := parseStoredToken(credentials); ok {
		s.setToken(ctx, tok)
		return nil
	}

	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		if _, err := s.Exchange(ctx, authCode); err != nil {
			return err
		}
		return nil
	}

	return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
}

// Exchange trades an authorization code for a token and authenticates the service.
func (s *SpotifyService) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	tok, err := s.config.Exchange(s.oauthContext(ctx), code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	s.setToken(ctx, tok)
	return tok, nil
}

// Token returns the current token, refreshing it if it has expired.
func (s *SpotifyService) Token() (*oauth2.Token, error) {
	if s.tokenSource == nil {
		return nil, shared.ErrNotAuthenticated
	}
	tok, err := s.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTokenExpired, err)
	}
	return tok, nil
}

func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.base)
}

// SetTokenRefreshCallback registers fn to receive tokens obtained by refresh, so they can be persisted.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.onTokenRefresh = fn
}

func (s *SpotifyService) setToken(ctx context.Context, tok *oauth2.Token) {
	octx := s.oauthContext(context.WithoutCancel(ctx))
	s.tokenSource = &refreshableTokenSource{
		source: oauth2.ReuseTokenSource(tok, s.config.TokenSource(octx, tok)),
		callback: func(t *oauth2.Token) {
			if s.onTokenRefresh != nil {
				s.onTokenRefresh(t)
			}
		},
		last: tok.AccessToken,
	}
	s.httpClient = oauth2.NewClient(octx, s.tokenSource)
	s.user = nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

func (s *SpotifyService) Provider() models.Provider {
	return models.Spotify
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// doRequest performs an authenticated HTTP request to the Spotify API.
//
// body, when non-nil, is sent as JSON. result, when non-nil, receives the decoded response.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if s.httpClient == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: spotify returned 401", shared.ErrTokenExpired)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrNotFound, endpoint)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: retry after %s", shared.ErrRateLimited, resp.Header.Get("Retry-After"))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: spotify status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	if s.user != nil {
		return s.user, nil
	}
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	s.user = &user
	return &user, nil
}

// CurrentUser returns the linked account for the session's user. Tokens are attached when available.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*models.Account, error) {
	user, err := s.UserProfile(ctx)
	if err != nil {
		return nil, err
	}

	name := user.DisplayName
	if name == "" {
		name = user.ID
	}
	account := models.NewAccount(models.Spotify, user.ID, name)
	if tok, err := s.Token(); err == nil {
		account.SetTokens(tok.AccessToken, tok.RefreshToken, tok.Expiry)
	}
	return account, nil
}

// UserPlaylists retrieves the current user's playlists with pagination.
func (s *SpotifyService) UserPlaylists(ctx context.Context, limit, offset int) (*SpotifyPage[SpotifyPlaylist], error) {
	limit = clampLimit(limit, spotifyPageSize)
	endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)

	var response SpotifyPage[SpotifyPlaylist]
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Playlist retrieves playlist metadata by ID.
func (s *SpotifyService) Playlist(ctx context.Context, playlistID string) (*SpotifyPlaylist, error) {
	endpoint := "/playlists/" + url.PathEscape(playlistID) + "?fields=" +
		url.QueryEscape("id,name,description,owner,public,tracks.total,external_urls,uri")

	var playlist SpotifyPlaylist
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &playlist); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
		}
		return nil, err
	}
	return &playlist, nil
}

// PlaylistTracks retrieves one page of a playlist's items.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) (*SpotifyPage[SpotifyPlaylistTrack], error) {
	limit = clampLimit(limit, spotifyTrackPage)
	endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", url.PathEscape(playlistID), limit, offset)

	var response SpotifyPage[SpotifyPlaylistTrack]
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
		}
		return nil, err
	}
	return &response, nil
}

// GetPlaylists retrieves all playlists for the authenticated user.
func (s *SpotifyService) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	var all []models.Playlist
	offset := 0

	for {
		response, err := s.UserPlaylists(ctx, spotifyPageSize, offset)
		if err != nil {
			return nil, err
		}

		for _, sp := range response.Items {
			all = append(all, sp.toModel())
		}

		if response.Next == nil || len(response.Items) == 0 {
			break
		}
		offset += len(response.Items)
	}

	return all, nil
}

// GetPlaylist retrieves a specific playlist by ID.
func (s *SpotifyService) GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	sp, err := s.Playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	p := sp.toModel()
	return &p, nil
}

// ExportPlaylist exports a playlist with all its tracks, following pagination.
//
// Episodes and removed items are skipped.
func (s *SpotifyService) ExportPlaylist(ctx context.Context, playlistID string) (*models.PlaylistExport, error) {
	playlist, err := s.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	var tracks []models.Track
	offset := 0
	for {
		page, err := s.PlaylistTracks(ctx, playlistID, spotifyTrackPage, offset)
		if err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil {
				continue
			}
			tracks = append(tracks, item.Track.toModel())
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)
	}

	return &models.PlaylistExport{Playlist: *playlist, Tracks: tracks}, nil
}

// ImportPlaylist creates a private playlist for the current user and adds the tracks in batches.
//
// Tracks without a URI or ID are skipped.
func (s *SpotifyService) ImportPlaylist(ctx context.Context, playlist *models.PlaylistExport) (*models.Playlist, error) {
	if playlist == nil || playlist.Playlist.Name == "" {
		return nil, fmt.Errorf("%w: playlist name is required", shared.ErrInvalidInput)
	}

	user, err := s.UserProfile(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"name":        playlist.Playlist.Name,
		"description": playlist.Playlist.Description,
		"public":      playlist.Playlist.Public,
	}
	var created SpotifyPlaylist
	if err := s.doRequest(ctx, http.MethodPost, "/users/"+url.PathEscape(user.ID)+"/playlists", body, &created); err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	uris := make([]string, 0, len(playlist.Tracks))
	for _, t := range playlist.Tracks {
		switch {
		case t.URI != "":
			uris = append(uris, t.URI)
		case t.ID != "":
			uris = append(uris, "spotify:track:"+t.ID)
		}
	}

	for start := 0; start < len(uris); start += spotifyAddBatch {
		end := min(start+spotifyAddBatch, len(uris))
		endpoint := "/playlists/" + url.PathEscape(created.ID) + "/tracks"
		if err := s.doRequest(ctx, http.MethodPost, endpoint, map[string]any{"uris": uris[start:end]}, nil); err != nil {
			return nil, fmt.Errorf("failed to add tracks %d-%d: %w", start, end, err)
		}
	}

	result := created.toModel()
	result.TrackCount = len(uris)
	return &result, nil
}

// SearchTrack looks want up by ISRC, then searches Spotify by title and artist and returns the best ranked result.
func (s *SpotifyService) SearchTrack(ctx context.Context, want models.Track) (*models.Track, error) {
	if want.ISRC != "" {
		track, err := s.searchISRC(ctx, want.ISRC)
		if err != nil && (errors.Is(err, shared.ErrRateLimited) || ctx.Err() != nil) {
			return nil, err
		}
		if track != nil {
			return track, nil
		}
	}

	query := fmt.Sprintf("track:%q", want.Title)
	if want.Artist != "" {
		query += fmt.Sprintf(" artist:%q", want.Artist)
	}
	candidates, err := s.search(ctx, query)
	if err != nil {
		return nil, err
	}
	return BestMatch(want, candidates, s.minScore)
}

// searchISRC returns the first search result whose ISRC equals isrc, or nil.
func (s *SpotifyService) searchISRC(ctx context.Context, isrc string) (*models.Track, error) {
	candidates, err := s.search(ctx, "isrc:"+isrc)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if strings.EqualFold(c.ISRC, isrc) {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *SpotifyService) search(ctx context.Context, query string) ([]models.Track, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(spotifySearchMax))

	var response struct {
		Tracks SpotifyPage[SpotifyTrack] `json:"tracks"`
	}
	if err := s.doRequest(ctx, http.MethodGet, "/search?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}

	candidates := make([]models.Track, 0, len(response.Tracks.Items))
	for _, t := range response.Tracks.Items {
		candidates = append(candidates, t.toModel())
	}
	return candidates, nil
}

func (sp SpotifyPlaylist) toModel() models.Playlist {
	return models.Playlist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		TrackCount:  sp.Tracks.Total,
		Public:      sp.Public,
		Owner:       sp.Owner.DisplayName,
		URL:         sp.ExternalURLs.Spotify,
	}
}

func (t SpotifyTrack) toModel() models.Track {
	track := models.Track{
		ID:       t.ID,
		Title:    t.Name,
		Album:    t.Album.Name,
		Duration: t.DurationMS / 1000,
		ISRC:     t.ExternalIDs.ISRC,
		URI:      t.URI,
	}
	if len(t.Artists) > 0 {
		track.Artist = t.Artists[0].Name
	}
	if t.IsLocal {
		track.URI = ""
	}
	return track
}

func clampLimit(limit, maximum int) int {
	if limit <= 0 || limit > maximum {
		return maximum
	}
	return limit
}
