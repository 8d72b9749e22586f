package registry

import (
	"context"
	"errors"
	"fmt"

	"axiscli/internal/config"
)

// Open builds the channel selected by cfg.Channel.
func Open(ctx context.Context, cfg config.RegistryConfig) (Channel, error) {
	switch cfg.Channel {
	case config.ChannelFile:
		if cfg.FilePath == "" {
			return nil, errors.New("registry.file_path is required for the file channel")
		}
		return NewFileChannel(cfg.FilePath), nil

	case config.ChannelHTTP:
		if cfg.URL == "" {
			return nil, errors.New("registry.url is required for the http channel")
		}
		return NewHTTPChannel(cfg.URL, WithRetries(cfg.RetryMax), WithBindURL(cfg.BindURL))

	case config.ChannelGitHub:
		return NewGitHubChannel(ctx, GitHubOptions{
			Owner:       cfg.GitHub.Owner,
			Repo:        cfg.GitHub.Repo,
			Branch:      cfg.GitHub.Branch,
			Path:        cfg.GitHub.Path,
			Token:       cfg.GitHub.Token,
			AuthorName:  cfg.GitHub.AuthorName,
			AuthorEmail: cfg.GitHub.AuthorEmail,
		})

	case config.ChannelSheets:
		return NewSheetsChannel(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.Range, cfg.Sheets.CredentialsFile)

	default:
		return nil, fmt.Errorf("unknown registry channel %q", cfg.Channel)
	}
}
