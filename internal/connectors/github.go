package connectors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v69/github"
)

// KindGitHub keys the GitHub adapter.
const KindGitHub = "github"

const githubDefaultMax = 30

// GitHub fetch types
const (
	GitHubFetchReleases     = "releases"
	GitHubFetchCommits      = "commits"
	GitHubFetchIssues       = "issues"
	GitHubFetchPullRequests = "pull_requests"
)

type githubConnector struct {
	sourceID uint
	config   map[string]interface{}
	client   *github.Client
}

// NewGitHubConnector builds the GitHub adapter. Credentials carry a per-user
// personal access token.
func NewGitHubConnector(sourceID uint, config, credentials map[string]interface{}) (Connector, error) {
	client := github.NewClient(nil)
	if token := configString(credentials, "access_token"); token != "" {
		client = client.WithAuthToken(token)
	}
	return &githubConnector{
		sourceID: sourceID,
		config:   config,
		client:   client,
	}, nil
}

func (c *githubConnector) Kind() string { return KindGitHub }

func (c *githubConnector) RequiredCredentials() []string { return []string{"access_token"} }

func (c *githubConnector) RequiredConfig() []string { return []string{"repository", "fetch_type"} }

// ownerRepo splits config["repository"] ("owner/repo").
func (c *githubConnector) ownerRepo() (string, string, error) {
	repository := configString(c.config, "repository")
	parts := strings.SplitN(repository, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &ValidationError{Kind: KindGitHub,
			Reason: fmt.Sprintf("repository must be owner/repo; got %q", repository)}
	}
	return parts[0], parts[1], nil
}

// Validate checks the repository exists and is readable with the token.
func (c *githubConnector) Validate(ctx context.Context) error {
	owner, repo, err := c.ownerRepo()
	if err != nil {
		return err
	}
	if _, _, err := c.client.Repositories.Get(ctx, owner, repo); err != nil {
		return wrapGitHubErr(err)
	}
	return nil
}

// Fetch returns repository activity of the configured fetch_type.
func (c *githubConnector) Fetch(ctx context.Context, since *time.Time) ([]Item, error) {
	owner, repo, err := c.ownerRepo()
	if err != nil {
		return nil, err
	}
	maxResults := configInt(c.config, "max_results", githubDefaultMax)
	opts := github.ListOptions{PerPage: maxResults}

	switch configString(c.config, "fetch_type") {
	case GitHubFetchReleases, "":
		return c.fetchReleases(ctx, owner, repo, opts, since)
	case GitHubFetchCommits:
		return c.fetchCommits(ctx, owner, repo, opts, since)
	case GitHubFetchIssues:
		return c.fetchIssues(ctx, owner, repo, opts, since)
	case GitHubFetchPullRequests:
		return c.fetchPullRequests(ctx, owner, repo, opts, since)
	default:
		return nil, &ValidationError{Kind: KindGitHub,
			Reason: fmt.Sprintf("unknown fetch_type %q", configString(c.config, "fetch_type"))}
	}
}

func (c *githubConnector) fetchReleases(ctx context.Context, owner, repo string, opts github.ListOptions, since *time.Time) ([]Item, error) {
	releases, _, err := c.client.Repositories.ListReleases(ctx, owner, repo, &opts)
	if err != nil {
		return nil, wrapGitHubErr(err)
	}
	var items []Item
	for _, r := range releases {
		published := r.GetPublishedAt().Time
		if !afterCutoff(published, since) {
			continue
		}
		items = append(items, Item{
			ContentType: "release",
			Title:       fmt.Sprintf("%s/%s: %s", owner, repo, r.GetName()),
			Content:     r.GetBody(),
			URL:         r.GetHTMLURL(),
			PublishedAt: published,
			Metadata: map[string]interface{}{
				"repository": owner + "/" + repo,
				"tag":        r.GetTagName(),
				"prerelease": r.GetPrerelease(),
			},
		})
	}
	return items, nil
}

func (c *githubConnector) fetchCommits(ctx context.Context, owner, repo string, opts github.ListOptions, since *time.Time) ([]Item, error) {
	commitOpts := &github.CommitsListOptions{ListOptions: opts}
	if since != nil {
		commitOpts.Since = *since
	}
	commits, _, err := c.client.Repositories.ListCommits(ctx, owner, repo, commitOpts)
	if err != nil {
		return nil, wrapGitHubErr(err)
	}
	var items []Item
	for _, cm := range commits {
		message := cm.GetCommit().GetMessage()
		title := message
		if i := strings.IndexByte(message, '\n'); i > 0 {
			title = message[:i]
		}
		published := cm.GetCommit().GetAuthor().GetDate().Time
		if !afterCutoff(published, since) {
			continue
		}
		items = append(items, Item{
			ContentType: "commit",
			Title:       title,
			Content:     message,
			URL:         cm.GetHTMLURL(),
			PublishedAt: published,
			Metadata: map[string]interface{}{
				"repository": owner + "/" + repo,
				"sha":        cm.GetSHA(),
				"author":     cm.GetCommit().GetAuthor().GetName(),
			},
		})
	}
	return items, nil
}

func (c *githubConnector) fetchIssues(ctx context.Context, owner, repo string, opts github.ListOptions, since *time.Time) ([]Item, error) {
	issueOpts := &github.IssueListByRepoOptions{State: "all", ListOptions: opts}
	if since != nil {
		issueOpts.Since = *since
	}
	issues, _, err := c.client.Issues.ListByRepo(ctx, owner, repo, issueOpts)
	if err != nil {
		return nil, wrapGitHubErr(err)
	}
	var items []Item
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		published := issue.GetCreatedAt().Time
		if !afterCutoff(published, since) {
			continue
		}
		items = append(items, Item{
			ContentType: "issue",
			Title:       issue.GetTitle(),
			Content:     issue.GetBody(),
			URL:         issue.GetHTMLURL(),
			PublishedAt: published,
			Metadata: map[string]interface{}{
				"repository": owner + "/" + repo,
				"number":     issue.GetNumber(),
				"state":      issue.GetState(),
				"author":     issue.GetUser().GetLogin(),
			},
		})
	}
	return items, nil
}

func (c *githubConnector) fetchPullRequests(ctx context.Context, owner, repo string, opts github.ListOptions, since *time.Time) ([]Item, error) {
	prOpts := &github.PullRequestListOptions{
		State: "all", Sort: "created", Direction: "desc", ListOptions: opts,
	}
	prs, _, err := c.client.PullRequests.List(ctx, owner, repo, prOpts)
	if err != nil {
		return nil, wrapGitHubErr(err)
	}
	var items []Item
	for _, pr := range prs {
		published := pr.GetCreatedAt().Time
		if !afterCutoff(published, since) {
			continue
		}
		items = append(items, Item{
			ContentType: "pull_request",
			Title:       pr.GetTitle(),
			Content:     pr.GetBody(),
			URL:         pr.GetHTMLURL(),
			PublishedAt: published,
			Metadata: map[string]interface{}{
				"repository": owner + "/" + repo,
				"number":     pr.GetNumber(),
				"state":      pr.GetState(),
				"author":     pr.GetUser().GetLogin(),
			},
		})
	}
	return items, nil
}

// wrapGitHubErr maps provider rate limiting onto the shared sentinel so the
// orchestrator fails fast instead of sleeping.
func wrapGitHubErr(err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return ErrRateLimited
	}
	return fmt.Errorf("github request failed: %w", err)
}
