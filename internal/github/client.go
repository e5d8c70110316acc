// Package github provides a client for retrieving upstream binary releases
// from the GitHub Releases API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"

	"github.com/openjdk-ci/releasewatch/internal/release"
)

// Sentinel errors for GitHub operations.
var (
	ErrEmptyCredentials = errors.New("github username and token cannot be empty")
	ErrEmptyOwner       = errors.New("repository owner cannot be empty")
	ErrNoReleases       = errors.New("repository has no releases")
)

// listPageSize is the page size used when listing all releases in
// early-access-inclusive mode.
const listPageSize = 100

// StatusError reports a non-2xx response from the release API. The poll for
// the affected version must be aborted.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("release API returned status %d: %s", e.StatusCode, e.Message)
}

// Client wraps the GitHub API client for release retrieval.
type Client struct {
	client *github.Client
	owner  string
}

// NewClient creates a client authenticated with basic credentials against the
// repositories of the given owner. The token is a personal access token used
// as the basic-auth password.
func NewClient(username, token, owner string) (*Client, error) {
	if username == "" || token == "" {
		return nil, ErrEmptyCredentials
	}
	if owner == "" {
		return nil, ErrEmptyOwner
	}

	transport := &github.BasicAuthTransport{
		Username: username,
		Password: token,
	}

	return &Client{
		client: github.NewClient(transport.Client()),
		owner:  owner,
	}, nil
}

// FetchMetadata retrieves release metadata for one binaries repository.
// In GA mode only the latest published release is considered; in
// early-access-inclusive mode all published releases are, and the newest
// publish timestamp wins.
func (c *Client) FetchMetadata(ctx context.Context, repo string, includeEA bool) (*release.Metadata, error) {
	if includeEA {
		return c.fetchAllReleases(ctx, repo)
	}
	return c.fetchLatestRelease(ctx, repo)
}

// fetchLatestRelease queries the latest-release endpoint. GitHub excludes
// pre-releases and drafts from this endpoint, so the result is the newest GA
// release.
func (c *Client) fetchLatestRelease(ctx context.Context, repo string) (*release.Metadata, error) {
	rel, resp, err := c.client.Repositories.GetLatestRelease(ctx, c.owner, repo)
	if err != nil {
		return nil, statusOrWrapped(resp, err, fmt.Sprintf("failed to get latest release of %s/%s", c.owner, repo))
	}

	return release.NewMetadata([]*github.RepositoryRelease{rel})
}

// fetchAllReleases pages through the list-releases endpoint and keeps every
// published record, early-access builds included.
func (c *Client) fetchAllReleases(ctx context.Context, repo string) (*release.Metadata, error) {
	opts := &github.ListOptions{PerPage: listPageSize}

	var all []*github.RepositoryRelease
	for {
		releases, resp, err := c.client.Repositories.ListReleases(ctx, c.owner, repo, opts)
		if err != nil {
			return nil, statusOrWrapped(resp, err, fmt.Sprintf("failed to list releases of %s/%s", c.owner, repo))
		}
		all = append(all, releases...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoReleases, c.owner, repo)
	}

	return release.NewMetadata(all)
}

// statusOrWrapped turns an API error into a StatusError when a response with
// a non-2xx status is available, so callers see the status code instead of a
// parsed error body.
func statusOrWrapped(resp *github.Response, err error, msg string) error {
	if resp != nil && resp.StatusCode >= http.StatusBadRequest {
		message := err.Error()
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) {
			message = ghErr.Message
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: message}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WithBaseURL points the client at an alternate API endpoint. Used by tests.
func (c *Client) WithBaseURL(baseURL string) error {
	client, err := c.client.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return fmt.Errorf("failed to set base URL: %w", err)
	}
	c.client = client
	return nil
}
