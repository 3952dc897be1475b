package gitops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/iambrandonn/chaba/internal/command"
	"github.com/iambrandonn/chaba/internal/errs"
)

const ghNotFoundMarker = "Could not resolve to a PullRequest"

// GHResolver looks up pull request branches with the gh CLI.
type GHResolver struct {
	runner command.Runner
	dir    string
}

// NewGHResolver returns a resolver running gh inside dir.
func NewGHResolver(runner command.Runner, dir string) *GHResolver {
	return &GHResolver{runner: runner, dir: dir}
}

// PRBranch returns the head branch of pull request number.
// It distinguishes a missing gh (errs.ErrToolMissing), an unknown pull
// request (errs.ErrNotFound) and any other gh failure (*errs.CommandError).
func (g *GHResolver) PRBranch(ctx context.Context, number int) (string, error) {
	if _, err := g.runner.LookPath("gh"); err != nil {
		return "", fmt.Errorf("GitHub CLI (gh) is required to resolve pull requests; install it from https://cli.github.com: %w", err)
	}

	out, err := g.runner.Run(ctx, g.dir, "gh", "pr", "view", strconv.Itoa(number),
		"--json", "headRefName", "-q", ".headRefName")
	if err != nil {
		return "", err
	}
	if !out.Success() {
		if strings.Contains(string(out.Stderr), ghNotFoundMarker) {
			return "", errs.NotFoundf("pull request #%d", number)
		}
		return "", out.Err("gh pr view")
	}

	branch := strings.TrimSpace(string(out.Stdout))
	if branch == "" {
		return "", errs.NotFoundf("pull request #%d", number)
	}
	return branch, nil
}

// APIResolver looks up pull request branches through the GitHub REST API.
type APIResolver struct {
	client *github.Client
	owner  string
	repo   string
}

// NewAPIResolver authenticates with token. An empty token makes
// unauthenticated requests, which only work for public repositories.
func NewAPIResolver(ctx context.Context, token, owner, repo string) *APIResolver {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(ctx, ts)
	}
	return NewAPIResolverWithClient(github.NewClient(hc), owner, repo)
}

// NewAPIResolverWithClient uses an existing client.
func NewAPIResolverWithClient(client *github.Client, owner, repo string) *APIResolver {
	return &APIResolver{client: client, owner: owner, repo: repo}
}

// PRBranch returns the head branch of pull request number.
func (a *APIResolver) PRBranch(ctx context.Context, number int) (string, error) {
	pr, resp, err := a.client.PullRequests.Get(ctx, a.owner, a.repo, number)
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			return "", errs.NotFoundf("pull request #%d in %s/%s", number, a.owner, a.repo)
		}
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", errs.NotFoundf("pull request #%d in %s/%s", number, a.owner, a.repo)
		}
		return "", fmt.Errorf("failed to fetch pull request #%d: %w", number, err)
	}

	branch := pr.GetHead().GetRef()
	if branch == "" {
		return "", errs.NotFoundf("pull request #%d has no head branch", number)
	}
	return branch, nil
}

var githubRemote = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`)

// ParseGitHubRemote extracts owner and repository from a GitHub remote URL.
// Supports git@github.com:owner/repo.git and https://github.com/owner/repo.git.
func ParseGitHubRemote(url string) (owner, repo string, ok bool) {
	m := githubRemote.FindStringSubmatch(strings.TrimSpace(url))
	if len(m) != 3 {
		return "", "", false
	}
	return m[1], m[2], true
}
