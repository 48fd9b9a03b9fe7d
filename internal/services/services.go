package services

import (
	"context"
	"net/http"
	"time"

	"github.com/desertthunder/sonikswap/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultRateLimit is the number of requests per second sent to a provider when none is configured.
const DefaultRateLimit = 8.0

// Service defines the interface for music providers (Spotify, Deezer) that can export and import playlists and songs.
type Service interface {
	// Authenticate restores a session from stored credentials.
	// Accepts "access_token" with optional "refresh_token" and "expiry" (RFC3339).
	Authenticate(ctx context.Context, credentials map[string]string) error

	// CurrentUser returns the account that owns the current session.
	CurrentUser(ctx context.Context) (*models.Account, error)

	// GetPlaylists retrieves all playlists for the authenticated user.
	GetPlaylists(ctx context.Context) ([]models.Playlist, error)

	// GetPlaylist retrieves a specific playlist by ID.
	GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error)

	// ExportPlaylist exports a playlist with all its tracks.
	ExportPlaylist(ctx context.Context, playlistID string) (*models.PlaylistExport, error)

	// ImportPlaylist creates a new playlist and populates it with the provided tracks.
	// Tracks must carry IDs (or URIs) valid for this service.
	ImportPlaylist(ctx context.Context, playlist *models.PlaylistExport) (*models.Playlist, error)

	// SearchTrack finds want on this service. A track carrying an ISRC is looked up by ISRC before falling back to a
	// title and artist search. Returns the best match or [shared.ErrTrackNotFound].
	SearchTrack(ctx context.Context, want models.Track) (*models.Track, error)

	// Name returns the display name of the service (e.g., "Spotify", "Deezer")
	Name() string

	// Provider returns the provider identifier.
	Provider() models.Provider
}

// OAuthService extends [Service] for providers that link accounts through an authorization code flow.
type OAuthService interface {
	Service

	// GetAuthURL returns the consent page URL carrying state.
	GetAuthURL(state string) string

	// Exchange trades an authorization code for a token and authenticates the service with it.
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)

	// Token returns the current token, refreshing it first when the provider supports refresh.
	Token() (*oauth2.Token, error)
}

// Option configures a provider client.
type Option func(*clientOptions)

type clientOptions struct {
	baseURL    string
	authURL    string
	tokenURL   string
	httpClient *http.Client
	rateLimit  float64
	minScore   float64
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option { return func(o *clientOptions) { o.baseURL = u } }

// WithAuthURLs overrides the OAuth consent and token endpoints.
func WithAuthURLs(authURL, tokenURL string) Option {
	return func(o *clientOptions) {
		o.authURL = authURL
		o.tokenURL = tokenURL
	}
}

// WithHTTPClient sets the client used for API and token requests.
func WithHTTPClient(c *http.Client) Option { return func(o *clientOptions) { o.httpClient = c } }

// WithRateLimit sets the maximum requests per second. Non-positive values disable limiting.
func WithRateLimit(rps float64) Option { return func(o *clientOptions) { o.rateLimit = rps } }

// WithMinMatchScore sets the minimum similarity a search result needs to be returned.
func WithMinMatchScore(score float64) Option { return func(o *clientOptions) { o.minScore = score } }

func buildOptions(baseURL, authURL, tokenURL string, opts []Option) clientOptions {
	o := clientOptions{
		baseURL:    baseURL,
		authURL:    authURL,
		tokenURL:   tokenURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		rateLimit:  DefaultRateLimit,
		minScore:   DefaultMinScore,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o clientOptions) limiter() *rate.Limiter {
	if o.rateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(o.rateLimit)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(o.rateLimit), burst)
}

// parseStoredToken builds an [oauth2.Token] from credentials saved on an account.
func parseStoredToken(credentials map[string]string) (*oauth2.Token, bool) {
	access := credentials["access_token"]
	if access == "" {
		return nil, false
	}
	tok := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: credentials["refresh_token"],
		TokenType:    "Bearer",
	}
	if exp := credentials["expiry"]; exp != "" {
		if t, err := time.Parse(time.RFC3339, exp); err == nil {
			tok.Expiry = t
		}
	}
	return tok, true
}
