package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/server"
	"github.com/desertthunder/sonikswap/internal/shared"
	"github.com/urfave/cli/v3"
)

type accountView struct {
	Provider   models.Provider `json:"provider"`
	Username   string          `json:"username"`
	ExternalID string          `json:"external_id"`
	Expiry     time.Time       `json:"expiry"`
	LinkedAt   time.Time       `json:"linked_at"`
}

// AccountLink runs the OAuth authorization code flow for a provider and stores the linked account.
//
// Starts a local HTTP server, opens the browser for user consent, and exchanges the code for tokens.
func (r *Runner) AccountLink(ctx context.Context, cmd *cli.Command) error {
	provider, err := providerArg(cmd)
	if err != nil {
		return err
	}

	if err := r.store(); err != nil {
		return err
	}

	svc, err := r.newOAuthService(provider)
	if err != nil {
		return err
	}

	state := shared.GenerateID()
	authURL := svc.GetAuthURL(state)
	handler := server.NewOAuthHandler(svc, svc.Name(), state)

	timeout := r.authTimeout
	if d := cmd.Duration("timeout"); d > 0 {
		timeout = d
	}

	r.logger.Info("starting authorization", "provider", provider, "addr", r.cfg().Server.Addr())
	token, err := server.WaitForCallback(ctx, r.cfg().Server.Addr(), handler, r.logger, timeout, func(addr string) {
		r.writePlain("Opening browser for %s authorization...\n", svc.Name())
		r.writePlain("If the browser does not open, visit:\n\n  %s\n\n", authURL)
		if err := r.openBrowser(authURL); err != nil {
			r.logger.Warn("failed to open browser", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("%s authorization failed: %w", svc.Name(), err)
	}

	account, err := svc.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch %s profile: %w", svc.Name(), err)
	}
	account.SetTokens(token.AccessToken, token.RefreshToken, token.Expiry)

	if err := r.accounts.Upsert(account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	r.services[provider] = svc

	r.writePlainln("✓ %s account linked: %s", svc.Name(), account.Username())
	r.writePlain("You can now use: sonik playlists list --provider %s\n", provider)
	return nil
}

// AccountList prints the linked accounts.
func (r *Runner) AccountList(ctx context.Context, cmd *cli.Command) error {
	if err := r.store(); err != nil {
		return err
	}

	accounts, err := r.accounts.List(map[string]any{})
	if err != nil {
		return err
	}

	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, accountView{
			Provider:   a.Provider(),
			Username:   a.Username(),
			ExternalID: a.ExternalID(),
			Expiry:     a.Expiry(),
			LinkedAt:   a.UpdatedAt(),
		})
	}

	if cmd.Bool("json") {
		return r.writeJSON(views, true)
	}

	if len(views) == 0 {
		r.writePlain("No linked accounts. Run 'sonik accounts link <provider>'.\n")
		return nil
	}

	r.writePlainHeader("Linked accounts")
	for _, v := range views {
		r.writePlain("%-8s %s (%s)\n", v.Provider, v.Username, v.ExternalID)
	}
	return nil
}

// AccountUnlink removes the stored account for a provider.
func (r *Runner) AccountUnlink(ctx context.Context, cmd *cli.Command) error {
	provider, err := providerArg(cmd)
	if err != nil {
		return err
	}

	if err := r.store(); err != nil {
		return err
	}

	account, err := r.accounts.GetByProvider(provider)
	if err != nil {
		return err
	}
	if err := r.accounts.Delete(account.ID()); err != nil {
		return fmt.Errorf("failed to unlink account: %w", err)
	}
	delete(r.services, provider)

	r.writePlain("✓ %s account unlinked: %s\n", provider, account.Username())
	return nil
}

func providerArg(cmd *cli.Command) (models.Provider, error) {
	if cmd.Args().Len() == 0 {
		return "", fmt.Errorf("%w: provider (spotify or deezer)", shared.ErrMissingArgument)
	}
	p, err := models.ParseProvider(cmd.Args().First())
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return p, nil
}

func accountsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "accounts",
		Aliases: []string{"account"},
		Usage:   "Link and manage provider accounts",
		Commands: []*cli.Command{
			{
				Name:      "link",
				Usage:     "Authorize a provider account with OAuth2",
				ArgsUsage: "<spotify|deezer>",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the authorization callback (default 2m)",
					},
				},
				Action: r.AccountLink,
			},
			{
				Name:   "list",
				Usage:  "List linked accounts",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.AccountList,
			},
			{
				Name:      "unlink",
				Usage:     "Remove a linked account",
				ArgsUsage: "<spotify|deezer>",
				Action:    r.AccountUnlink,
			},
		},
	}
}
