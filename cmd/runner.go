package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/repositories"
	"github.com/desertthunder/sonikswap/internal/services"
	"github.com/desertthunder/sonikswap/internal/shared"
	"github.com/desertthunder/sonikswap/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const defaultAuthTimeout = 2 * time.Minute

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	db          *sql.DB
	ownsDB      bool
	accounts    *repositories.AccountRepository
	transfers   *repositories.TransferRepository
	tracks      *repositories.TrackRepository
	services    map[models.Provider]services.Service
	logger      *log.Logger
	output      io.Writer
	engine      *tasks.PlaylistEngine
	openBrowser func(url string) error
	authTimeout time.Duration
	clientOpts  []services.Option
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	DB         *sql.DB
	Services   map[models.Provider]services.Service
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration.
//
// The database and provider services are opened on first use when not supplied.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Services == nil {
		opts.Services = make(map[models.Provider]services.Service)
	}

	r := &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		services:    opts.Services,
		logger:      opts.Logger,
		output:      opts.Output,
		openBrowser: shared.OpenBrowser,
		authTimeout: defaultAuthTimeout,
	}
	if opts.DB != nil {
		r.useDB(opts.DB)
	}
	return r
}

// SetLogger replaces the logger used by the runner and its engine.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
	if r.engine != nil {
		r.engine = tasks.NewPlaylistEngine(r.transfers, r.trackCache(), logger)
	}
}

func (r *Runner) useDB(db *sql.DB) {
	r.db = db
	r.accounts = repositories.NewAccountRepository(db)
	r.transfers = repositories.NewTransferRepository(db)
	r.tracks = repositories.NewTrackRepository(db)
	r.engine = tasks.NewPlaylistEngine(r.transfers, r.trackCache(), r.logger)
}

func (r *Runner) trackCache() tasks.TrackCacher {
	if r.tracks == nil {
		return nil
	}
	return repositories.NewTrackCacheAdapter(r.tracks)
}

// before loads configuration for every command. It runs as the root command's Before hook.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	if path := cmd.String("config"); path != "" && r.configPath == "" {
		r.configPath = path
	}
	if r.config == nil {
		config, err := shared.LoadConfigOrDefault(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	}
	return ctx, nil
}

// close releases a database opened by the runner. It runs as the root command's After hook.
func (r *Runner) close(ctx context.Context, cmd *cli.Command) error {
	if r.db != nil && r.ownsDB {
		return r.db.Close()
	}
	return nil
}

func (r *Runner) cfg() *shared.Config {
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}
	return r.config
}

// store opens the database and runs pending migrations on first use.
func (r *Runner) store() error {
	if r.db != nil {
		return nil
	}
	db, err := shared.OpenDatabase(r.cfg().Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	r.useDB(db)
	r.ownsDB = true
	return nil
}

func (r *Runner) serviceOptions() []services.Option {
	opts := []services.Option{
		services.WithRateLimit(r.cfg().Transfer.RateLimit),
		services.WithMinMatchScore(r.cfg().Transfer.MinMatchScore),
	}
	return append(opts, r.clientOpts...)
}

// newOAuthService builds an unauthenticated client for provider from the configured credentials.
func (r *Runner) newOAuthService(provider models.Provider) (services.OAuthService, error) {
	creds := r.cfg().Credentials
	switch provider {
	case models.Spotify:
		svc, err := services.NewSpotifyService(creds.Spotify.Map(), r.serviceOptions()...)
		if err != nil {
			return nil, fmt.Errorf("%w: set credentials.spotify in %s", err, r.configPath)
		}
		return svc, nil
	case models.Deezer:
		svc, err := services.NewDeezerService(creds.Deezer.Map(), r.serviceOptions()...)
		if err != nil {
			return nil, fmt.Errorf("%w: set credentials.deezer in %s", err, r.configPath)
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", shared.ErrInvalidArgument, provider)
	}
}

// service returns an authenticated client for provider, restoring the session from the linked account.
//
// Tokens refreshed during the session are written back to the account.
func (r *Runner) service(ctx context.Context, provider models.Provider) (services.Service, error) {
	if svc, ok := r.services[provider]; ok {
		return svc, nil
	}

	if err := r.store(); err != nil {
		return nil, err
	}

	account, err := r.accounts.GetByProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: run 'sonik accounts link %s'", err, provider)
	}

	svc, err := r.newOAuthService(provider)
	if err != nil {
		return nil, err
	}
	if err := svc.Authenticate(ctx, account.Credentials()); err != nil {
		return nil, fmt.Errorf("failed to restore %s session: %w", provider, err)
	}

	if sp, ok := svc.(*services.SpotifyService); ok {
		sp.SetTokenRefreshCallback(func(tok *oauth2.Token) {
			account.SetTokens(tok.AccessToken, tok.RefreshToken, tok.Expiry)
			if err := r.accounts.Update(account); err != nil {
				r.logger.Warn("failed to persist refreshed token", "provider", provider, "err", err)
				return
			}
			r.logger.Debug("refreshed token saved", "provider", provider, "expiry", tok.Expiry)
		})
	}

	r.services[provider] = svc
	return svc, nil
}

// parseProvider reads the provider named by flag.
func parseProvider(cmd *cli.Command, flag string) (models.Provider, error) {
	value := cmd.String(flag)
	if value == "" {
		return "", fmt.Errorf("%w: --%s", shared.ErrMissingArgument, flag)
	}
	p, err := models.ParseProvider(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return p, nil
}

func (r *Runner) serviceFlag(ctx context.Context, cmd *cli.Command, flag string) (services.Service, error) {
	p, err := parseProvider(cmd, flag)
	if err != nil {
		return nil, err
	}
	return r.service(ctx, p)
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, accountsCommand, playlistsCommand, transferCommand, cacheCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
