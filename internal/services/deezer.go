// Deezer API implementation of [Service]
//
// Response types follow https://developers.deezer.com/api
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
	"time"

	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	deezerAuthURL  = "https://connect.deezer.com/oauth/auth.php"
	deezerTokenURL = "https://connect.deezer.com/oauth/access_token.php"
	deezerBaseURL  = "https://api.deezer.com"

	deezerPageSize  = 100
	deezerAddBatch  = 100
	deezerSearchMax = 10
	deezerPerms     = "basic_access,offline_access,manage_library"
)

// Deezer error codes, see https://developers.deezer.com/api/errors
const (
	deezerQuota        = 4
	deezerPermission   = 200
	deezerTokenInvalid = 300
	deezerParameter    = 500
	deezerMissingParam = 501
	deezerQueryInvalid = 600
	deezerServiceBusy  = 700
	deezerDataNotFound = 800
)

// DeezerError is the error envelope Deezer returns, usually with HTTP 200.
type DeezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *DeezerError) Error() string {
	return fmt.Sprintf("deezer %s (%d): %s", e.Type, e.Code, e.Message)
}

// Unwrap maps the Deezer code onto the shared sentinel errors.
func (e *DeezerError) Unwrap() error {
	switch e.Code {
	case deezerQuota, deezerServiceBusy:
		return shared.ErrRateLimited
	case deezerTokenInvalid:
		return shared.ErrTokenExpired
	case deezerPermission:
		return shared.ErrAuthFailed
	case deezerDataNotFound:
		return shared.ErrNotFound
	case deezerParameter, deezerMissingParam, deezerQueryInvalid:
		return shared.ErrInvalidArgument
	default:
		return shared.ErrAPIRequest
	}
}

// flexString decodes JSON strings and numbers alike; Deezer IDs appear as both.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// DeezerUser is the /user/me payload.
type DeezerUser struct {
	ID   flexString `json:"id"`
	Name string     `json:"name"`
	Link string     `json:"link"`
}

// DeezerPlaylist represents a Deezer playlist.
type DeezerPlaylist struct {
	ID          flexString `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Public      bool       `json:"public"`
	NbTracks    int        `json:"nb_tracks"`
	Link        string     `json:"link"`
	Creator     DeezerUser `json:"creator"`
}

// DeezerTrack represents a Deezer track.
type DeezerTrack struct {
	ID       flexString `json:"id"`
	Title    string     `json:"title"`
	ISRC     string     `json:"isrc"`
	Link     string     `json:"link"`
	Duration flexString `json:"duration"`
	Artist   struct {
		Name string `json:"name"`
	} `json:"artist"`
	Album struct {
		Title string `json:"title"`
	} `json:"album"`
}

// DeezerPage is a paginated Deezer list.
type DeezerPage[T any] struct {
	Data  []T    `json:"data"`
	Total int    `json:"total"`
	Next  string `json:"next"`
}

// DeezerService implements the Service interface for the Deezer API.
type DeezerService struct {
	appID       string
	secret      string
	redirectURI string
	authURL     string
	tokenURL    string
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	minScore    float64
	token       *oauth2.Token
	user        *DeezerUser
}

// NewDeezerService creates a Deezer service from application credentials ("app_id", "secret", "redirect_uri").
func NewDeezerService(credentials map[string]string, opts ...Option) (*DeezerService, error) {
	appID := credentials["app_id"]
	if appID == "" {
		return nil, fmt.Errorf("%w: missing app_id", shared.ErrMissingCredentials)
	}
	secret := credentials["secret"]
	if secret == "" {
		return nil, fmt.Errorf("%w: missing secret", shared.ErrMissingCredentials)
	}
	redirectURI := credentials["redirect_uri"]
	if redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}

	o := buildOptions(deezerBaseURL, deezerAuthURL, deezerTokenURL, opts)
	return &DeezerService{
		appID:       appID,
		secret:      secret,
		redirectURI: redirectURI,
		authURL:     o.authURL,
		tokenURL:    o.tokenURL,
		baseURL:     o.baseURL,
		httpClient:  o.httpClient,
		limiter:     o.limiter(),
		minScore:    o.minScore,
	}, nil
}

func (d *DeezerService) Name() string              { return "Deezer" }
func (d *DeezerService) Provider() models.Provider { return models.Deezer }

// Authenticate restores a session from a stored access token, or exchanges an "auth_code".
func (d *DeezerService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if tok, ok := parseStoredToken(credentials); ok {
		d.token = tok
		d.user = nil
		return nil
	}
	if code := credentials["auth_code"]; code != "" {
		_, err := d.Exchange(ctx, code)
		return err
	}
	return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
}

// GetAuthURL returns the Deezer consent page URL.
func (d *DeezerService) GetAuthURL(state string) string {
	params := url.Values{}
	params.Set("app_id", d.appID)
	params.Set("redirect_uri", d.redirectURI)
	params.Set("perms", deezerPerms)
	params.Set("state", state)
	return d.authURL + "?" + params.Encode()
}

// Exchange trades an authorization code for an access token.
//
// Deezer does not follow the OAuth2 token endpoint conventions, so opts are ignored.
func (d *DeezerService) Exchange(ctx context.Context, code string, _ ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	params := url.Values{}
	params.Set("app_id", d.appID)
	params.Set("secret", d.secret)
	params.Set("code", code)
	params.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.tokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	var payload struct {
		AccessToken string     `json:"access_token"`
		Expires     flexString `json:"expires"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.AccessToken == "" {
		return nil, fmt.Errorf("%w: deezer token response: %s", shared.ErrAuthFailed, strings.TrimSpace(string(data)))
	}

	tok := &oauth2.Token{AccessToken: payload.AccessToken, TokenType: "Bearer"}
	if secs, err := strconv.Atoi(string(payload.Expires)); err == nil && secs > 0 {
		tok.Expiry = time.Now().Add(time.Duration(secs) * time.Second)
	}
	d.token = tok
	d.user = nil
	return tok, nil
}

// Token returns the current token. Deezer tokens cannot be refreshed.
func (d *DeezerService) Token() (*oauth2.Token, error) {
	if d.token == nil {
		return nil, shared.ErrNotAuthenticated
	}
	if !d.token.Expiry.IsZero() && time.Now().After(d.token.Expiry) {
		return nil, fmt.Errorf("%w: deezer token expired at %s", shared.ErrTokenExpired, d.token.Expiry.Format(time.RFC3339))
	}
	return d.token, nil
}

// doRequest performs an authenticated request. params are sent in the query string, which is how Deezer
// accepts arguments for both reads and writes.
func (d *DeezerService) doRequest(ctx context.Context, method, endpoint string, params url.Values, result any) error {
	tok, err := d.Token()
	if err != nil {
		return err
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", tok.AccessToken)

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: deezer status 429", shared.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: deezer status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Error *DeezerError `json:"error"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err == nil && envelope.Error != nil {
			return envelope.Error
		}
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// UserProfile retrieves the current user.
func (d *DeezerService) UserProfile(ctx context.Context) (*DeezerUser, error) {
	if d.user != nil {
		return d.user, nil
	}
	var user DeezerUser
	if err := d.doRequest(ctx, http.MethodGet, "/user/me", nil, &user); err != nil {
		return nil, err
	}
	d.user = &user
	return &user, nil
}

// CurrentUser returns the linked account for the session's user.
func (d *DeezerService) CurrentUser(ctx context.Context) (*models.Account, error) {
	user, err := d.UserProfile(ctx)
	if err != nil {
		return nil, err
	}
	account := models.NewAccount(models.Deezer, string(user.ID), user.Name)
	if tok, err := d.Token(); err == nil {
		account.SetTokens(tok.AccessToken, tok.RefreshToken, tok.Expiry)
	}
	return account, nil
}

// fetchAll walks a paginated Deezer list using index/limit.
func fetchAll[T any](ctx context.Context, d *DeezerService, endpoint string) ([]T, error) {
	var all []T
	index := 0
	for {
		params := url.Values{}
		params.Set("index", strconv.Itoa(index))
		params.Set("limit", strconv.Itoa(deezerPageSize))

		var page DeezerPage[T]
		if err := d.doRequest(ctx, http.MethodGet, endpoint, params, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Data...)

		if page.Next == "" || len(page.Data) == 0 {
			return all, nil
		}
		index += len(page.Data)
	}
}

// GetPlaylists retrieves all playlists for the authenticated user.
func (d *DeezerService) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	playlists, err := fetchAll[DeezerPlaylist](ctx, d, "/user/me/playlists")
	if err != nil {
		return nil, err
	}
	out := make([]models.Playlist, 0, len(playlists))
	for _, p := range playlists {
		out = append(out, p.toModel())
	}
	return out, nil
}

// GetPlaylist retrieves a specific playlist by ID.
func (d *DeezerService) GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	var p DeezerPlaylist
	if err := d.doRequest(ctx, http.MethodGet, "/playlist/"+url.PathEscape(playlistID), nil, &p); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
		}
		return nil, err
	}
	m := p.toModel()
	return &m, nil
}

// ExportPlaylist exports a playlist with all its tracks.
func (d *DeezerService) ExportPlaylist(ctx context.Context, playlistID string) (*models.PlaylistExport, error) {
	playlist, err := d.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	raw, err := fetchAll[DeezerTrack](ctx, d, "/playlist/"+url.PathEscape(playlistID)+"/tracks")
	if err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(raw))
	for _, t := range raw {
		tracks = append(tracks, t.toModel())
	}
	return &models.PlaylistExport{Playlist: *playlist, Tracks: tracks}, nil
}

// ImportPlaylist creates a playlist for the current user and adds the tracks by Deezer ID.
func (d *DeezerService) ImportPlaylist(ctx context.Context, playlist *models.PlaylistExport) (*models.Playlist, error) {
	if playlist == nil || playlist.Playlist.Name == "" {
		return nil, fmt.Errorf("%w: playlist name is required", shared.ErrInvalidInput)
	}

	params := url.Values{}
	params.Set("title", playlist.Playlist.Name)
	var created struct {
		ID flexString `json:"id"`
	}
	if err := d.doRequest(ctx, http.MethodPost, "/user/me/playlists", params, &created); err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}
	id := string(created.ID)

	ids := make([]string, 0, len(playlist.Tracks))
	for _, t := range playlist.Tracks {
		if t.ID != "" {
			ids = append(ids, t.ID)
		}
	}

	for start := 0; start < len(ids); start += deezerAddBatch {
		end := min(start+deezerAddBatch, len(ids))
		add := url.Values{}
		add.Set("songs", strings.Join(ids[start:end], ","))
		if err := d.doRequest(ctx, http.MethodPost, "/playlist/"+url.PathEscape(id)+"/tracks", add, nil); err != nil {
			return nil, fmt.Errorf("failed to add tracks %d-%d: %w", start, end, err)
		}
	}

	return &models.Playlist{
		ID:          id,
		Name:        playlist.Playlist.Name,
		Description: playlist.Playlist.Description,
		TrackCount:  len(ids),
		Public:      true,
		URL:         "https://www.deezer.com/playlist/" + id,
	}, nil
}

// SearchTrack looks want up through /track/isrc:{code}, then searches Deezer by title and artist and returns the best
// ranked result.
func (d *DeezerService) SearchTrack(ctx context.Context, want models.Track) (*models.Track, error) {
	if want.ISRC != "" {
		track, err := d.trackByISRC(ctx, want.ISRC)
		if err != nil && (errors.Is(err, shared.ErrRateLimited) || ctx.Err() != nil) {
			return nil, err
		}
		if track != nil {
			return track, nil
		}
	}

	query := fmt.Sprintf("track:%q", want.Title)
	if want.Artist != "" {
		query = fmt.Sprintf("artist:%q %s", want.Artist, query)
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(deezerSearchMax))

	var page DeezerPage[DeezerTrack]
	if err := d.doRequest(ctx, http.MethodGet, "/search", params, &page); err != nil {
		return nil, err
	}

	candidates := make([]models.Track, 0, len(page.Data))
	for _, t := range page.Data {
		candidates = append(candidates, t.toModel())
	}
	return BestMatch(want, candidates, d.minScore)
}

// trackByISRC returns the Deezer track registered under isrc, or nil when the response names another recording.
func (d *DeezerService) trackByISRC(ctx context.Context, isrc string) (*models.Track, error) {
	var track DeezerTrack
	if err := d.doRequest(ctx, http.MethodGet, "/track/isrc:"+url.PathEscape(isrc), nil, &track); err != nil {
		return nil, err
	}
	if track.ID == "" || !strings.EqualFold(track.ISRC, isrc) {
		return nil, nil
	}
	t := track.toModel()
	return &t, nil
}

func (p DeezerPlaylist) toModel() models.Playlist {
	return models.Playlist{
		ID:          string(p.ID),
		Name:        p.Title,
		Description: p.Description,
		TrackCount:  p.NbTracks,
		Public:      p.Public,
		Owner:       p.Creator.Name,
		URL:         p.Link,
	}
}

func (t DeezerTrack) toModel() models.Track {
	duration, _ := strconv.Atoi(string(t.Duration))
	return models.Track{
		ID:       string(t.ID),
		Title:    t.Title,
		Artist:   t.Artist.Name,
		Album:    t.Album.Title,
		Duration: duration,
		ISRC:     t.ISRC,
		URI:      t.Link,
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
