package gitflame

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/morezero/actions-dispatcher/pkg/action"
	"github.com/morezero/actions-dispatcher/pkg/blocking"
	"github.com/morezero/actions-dispatcher/pkg/registry"
)

// Owner is a GitFlame user as embedded in repositories and issues.
type Owner struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Login    string `json:"login"`
}

// RepoInput identifies a repository.
type RepoInput struct {
	Owner string `json:"owner" desc:"Repository owner login"`
	Repo  string `json:"repo" desc:"Repository name"`
}

// RepoInfo is the result of "Get repo information".
type RepoInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       Owner  `json:"owner"`
	StarsCount  int64  `json:"stars_count"`
}

// CreateIssueInput is the input of "Create issue".
type CreateIssueInput struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CreatedIssue is the result of "Create issue".
type CreatedIssue struct {
	Title      string         `json:"title"`
	URL        string         `json:"url"`
	Number     int64          `json:"number"`
	CreatedAt  string         `json:"created_at"`
	Repository map[string]any `json:"repository"`
	Body       any            `json:"body"`
}

// IssueInput identifies an issue.
type IssueInput struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Index int64  `json:"index" desc:"Issue number within the repository"`
}

// Issue is the result of "Get issue" and an element of "Get repo issues".
type Issue struct {
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	User      Owner  `json:"user"`
}

// DeletedIssue is the empty result of "Delete issue".
type DeletedIssue struct{}

// EditIssueInput is the input of "Edit issue".
type EditIssueInput struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Index int64  `json:"index"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// EditedIssue is the result of "Edit issue".
type EditedIssue struct {
	UpdatedAt string `json:"updated_at"`
}

// RepoIssues is the result of "Get repo issues".
type RepoIssues struct {
	Issues []Issue `json:"issues"`
}

// Register adds the GitFlame REST actions to reg.
func (c *Client) Register(reg *registry.Registry) error {
	opts := func(name, desc string) registry.Options {
		return registry.Options{System: SystemName, Action: name, Description: desc}
	}

	if err := registry.AddAsync(reg, opts("Get repo information", "Fetch repository metadata"), c.GetRepoInfo); err != nil {
		return err
	}
	create := opts("Create issue", "Open a new issue in a repository")
	create.Formatter = FormatCreatedIssue
	if err := registry.AddAsync(reg, create, c.CreateIssue); err != nil {
		return err
	}
	if err := registry.AddAsync(reg, opts("Get issue", "Fetch one issue"), c.GetIssue); err != nil {
		return err
	}
	if err := registry.AddAsync(reg, opts("Delete issue", "Delete one issue"), c.DeleteIssue); err != nil {
		return err
	}
	if err := registry.AddAsync(reg, opts("Edit issue", "Change an issue's title and body"), c.EditIssue); err != nil {
		return err
	}
	return registry.AddAsync(reg, opts("Get repo issues", "List a repository's issues"), c.GetRepoIssues)
}

func repoPath(owner, repo string) string {
	return fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo))
}

func issuePath(owner, repo string, index int64) string {
	return fmt.Sprintf("%s/issues/%d", repoPath(owner, repo), index)
}

func ownerFrom(r gjson.Result) Owner {
	return Owner{
		ID:       r.Get("id").Int(),
		Username: r.Get("username").String(),
		Login:    r.Get("login").String(),
	}
}

func issueFrom(r gjson.Result) Issue {
	return Issue{
		Title:     r.Get("title").String(),
		CreatedAt: r.Get("created_at").String(),
		User:      ownerFrom(r.Get("user")),
	}
}

// GetRepoInfo fetches repository metadata.
func (c *Client) GetRepoInfo(ctx context.Context, auth action.AuthContext, in RepoInput) *blocking.Future[RepoInfo] {
	return blocking.Submit(ctx, c.pool, func(ctx context.Context) (RepoInfo, error) {
		r, err := c.call(ctx, auth, "get repo information", http.MethodGet, repoPath(in.Owner, in.Repo), nil, http.StatusOK)
		if err != nil {
			return RepoInfo{}, err
		}
		return RepoInfo{
			ID:          r.Get("id").Int(),
			Name:        r.Get("name").String(),
			Description: r.Get("description").String(),
			Owner:       ownerFrom(r.Get("owner")),
			StarsCount:  r.Get("stars_count").Int(),
		}, nil
	})
}

// CreateIssue opens an issue.
func (c *Client) CreateIssue(ctx context.Context, auth action.AuthContext, in CreateIssueInput) *blocking.Future[CreatedIssue] {
	return blocking.Submit(ctx, c.pool, func(ctx context.Context) (CreatedIssue, error) {
		body := map[string]string{"title": in.Title, "body": in.Body}
		r, err := c.call(ctx, auth, "create issue", http.MethodPost, repoPath(in.Owner, in.Repo)+"/issues", body, http.StatusCreated)
		if err != nil {
			return CreatedIssue{}, err
		}
		repo, _ := r.Get("repository").Value().(map[string]any)
		return CreatedIssue{
			Title:      r.Get("title").String(),
			URL:        r.Get("url").String(),
			Number:     r.Get("number").Int(),
			CreatedAt:  r.Get("created_at").String(),
			Repository: repo,
			Body:       r.Get("body").Value(),
		}, nil
	})
}

// GetIssue fetches one issue.
func (c *Client) GetIssue(ctx context.Context, auth action.AuthContext, in IssueInput) *blocking.Future[Issue] {
	return blocking.Submit(ctx, c.pool, func(ctx context.Context) (Issue, error) {
		r, err := c.call(ctx, auth, "get issue", http.MethodGet, issuePath(in.Owner, in.Repo, in.Index), nil, http.StatusOK)
		if err != nil {
			return Issue{}, err
		}
		return issueFrom(r), nil
	})
}

// DeleteIssue deletes one issue.
func (c *Client) DeleteIssue(ctx context.Context, auth action.AuthContext, in IssueInput) *blocking.Future[DeletedIssue] {
	return blocking.Submit(ctx, c.pool, func(ctx context.Context) (DeletedIssue, error) {
		_, err := c.call(ctx, auth, "delete issue", http.MethodDelete, issuePath(in.Owner, in.Repo, in.Index), nil, http.StatusNoContent)
		return DeletedIssue{}, err
	})
}

// EditIssue replaces an issue's title and body. GitFlame answers 201 on success.
func (c *Client) EditIssue(ctx context.Context, auth action.AuthContext, in EditIssueInput) *blocking.Future[EditedIssue] {
	return blocking.Submit(ctx, c.pool, func(ctx context.Context) (EditedIssue, error) {
		body := map[string]string{"title": in.Title, "body": in.Body}
		r, err := c.call(ctx, auth, "edit issue", http.MethodPatch, issuePath(in.Owner, in.Repo, in.Index), body, http.StatusCreated)
		if err != nil {
			return EditedIssue{}, err
		}
		return EditedIssue{UpdatedAt: r.Get("updated_at").String()}, nil
	})
}

// GetRepoIssues lists a repository's issues.
func (c *Client) GetRepoIssues(ctx context.Context, auth action.AuthContext, in RepoInput) *blocking.Future[RepoIssues] {
	return blocking.Submit(ctx, c.pool, func(ctx context.Context) (RepoIssues, error) {
		r, err := c.call(ctx, auth, "get issues", http.MethodGet, repoPath(in.Owner, in.Repo)+"/issues", nil, http.StatusOK)
		if err != nil {
			return RepoIssues{}, err
		}
		out := RepoIssues{Issues: []Issue{}}
		r.ForEach(func(_, issue gjson.Result) bool {
			out.Issues = append(out.Issues, issueFrom(issue))
			return true
		})
		return out, nil
	})
}
