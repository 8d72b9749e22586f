package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"
)

// GitHubOptions identifies the repository file holding the registry.
type GitHubOptions struct {
	Owner       string
	Repo        string
	Branch      string
	Path        string
	Token       string
	AuthorName  string
	AuthorEmail string
}

// GitHubChannel publishes the registry as a file in a GitHub repository
// through the contents API and reads it back from the same place.
type GitHubChannel struct {
	client *github.Client
	opts   GitHubOptions
	now    func() time.Time
}

// NewGitHubChannel creates a channel using a token-authenticated client.
// An empty token yields an anonymous client, which can only fetch from
// public repositories.
func NewGitHubChannel(ctx context.Context, opts GitHubOptions) (*GitHubChannel, error) {
	var httpClient *http.Client
	if opts.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	return NewGitHubChannelWithClient(github.NewClient(httpClient), opts)
}

// NewGitHubChannelWithClient creates a channel around an existing client.
func NewGitHubChannelWithClient(client *github.Client, opts GitHubOptions) (*GitHubChannel, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, errors.New("github owner and repo are required")
	}
	if opts.Path == "" {
		opts.Path = "keys.json"
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	return &GitHubChannel{client: client, opts: opts, now: time.Now}, nil
}

// Fetch downloads the registry file from the configured branch.
func (c *GitHubChannel) Fetch(ctx context.Context) ([]byte, error) {
	file, _, err := c.getFile(ctx)
	if err != nil {
		return nil, unavailable("fetch", err)
	}
	if file == nil {
		return nil, unavailable("fetch", fmt.Errorf("%s not found in %s/%s", c.opts.Path, c.opts.Owner, c.opts.Repo))
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, unavailable("fetch", err)
	}
	return []byte(content), nil
}

// Publish commits document to the registry file, creating it if needed.
// Publishing identical content is skipped.
func (c *GitHubChannel) Publish(ctx context.Context, document []byte) error {
	file, exists, err := c.getFile(ctx)
	if err != nil {
		return unavailable("publish", err)
	}

	options := &github.RepositoryContentFileOptions{
		Message: github.Ptr(fmt.Sprintf("Update %s (%s)", c.opts.Path, c.now().UTC().Format(time.RFC3339))),
		Content: document,
		Branch:  github.Ptr(c.opts.Branch),
	}
	if c.opts.AuthorName != "" && c.opts.AuthorEmail != "" {
		options.Committer = &github.CommitAuthor{
			Name:  github.Ptr(c.opts.AuthorName),
			Email: github.Ptr(c.opts.AuthorEmail),
		}
	}

	if exists {
		current, err := file.GetContent()
		if err == nil && current == string(document) {
			return nil
		}
		options.SHA = github.Ptr(file.GetSHA())
		_, _, err = c.client.Repositories.UpdateFile(ctx, c.opts.Owner, c.opts.Repo, c.opts.Path, options)
		if err != nil {
			return unavailable("publish", fmt.Errorf("could not update %s: %v", c.opts.Path, err))
		}
		return nil
	}

	_, _, err = c.client.Repositories.CreateFile(ctx, c.opts.Owner, c.opts.Repo, c.opts.Path, options)
	if err != nil {
		return unavailable("publish", fmt.Errorf("could not create %s: %v", c.opts.Path, err))
	}
	return nil
}

// getFile returns the registry file, or exists=false on 404.
func (c *GitHubChannel) getFile(ctx context.Context) (*github.RepositoryContent, bool, error) {
	file, _, resp, err := c.client.Repositories.GetContents(ctx, c.opts.Owner, c.opts.Repo, c.opts.Path,
		&github.RepositoryContentGetOptions{Ref: c.opts.Branch})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("could not get %s: %v", c.opts.Path, err)
	}
	if file == nil {
		return nil, false, fmt.Errorf("%s is a directory", c.opts.Path)
	}
	return file, true, nil
}
