package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/etabotai/etabot/pkg/domain/project"
	"github.com/etabotai/etabot/pkg/domain/tms"
)

const pageSize = 100

type handle struct{ account string }

func (h handle) Account() string { return h.account }

// Adapter implements tms.Adapter for Jira.
type Adapter struct {
	client *Client
	logger *slog.Logger
}

var _ tms.Adapter = (*Adapter)(nil)

// NewAdapter creates a Jira adapter.
func NewAdapter(client *Client, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{client: client, logger: logger}
}

func (a *Adapter) Name() string { return "jira" }

type user struct {
	AccountID    string            `json:"accountId"`
	Name         string            `json:"name"`
	DisplayName  string            `json:"displayName"`
	EmailAddress string            `json:"emailAddress"`
	AvatarURLs   map[string]string `json:"avatarUrls"`
}

func (u *user) id() string {
	if u.AccountID != "" {
		return u.AccountID
	}
	return u.Name
}

// Connect verifies the credentials.
func (a *Adapter) Connect(ctx context.Context) (tms.Handle, error) {
	var me user
	if err := a.client.get(ctx, "/rest/api/2/myself", nil, &me); err != nil {
		return nil, &tms.ConnectionError{Endpoint: a.client.base.String(), Err: err}
	}
	name := me.Name
	if name == "" {
		name = me.DisplayName
	}
	a.logger.Info("connected to jira", "endpoint", a.client.Host(), "user", name)
	return handle{account: name + "@" + a.client.Host()}, nil
}

// FetchProjects lists visible projects keyed by project key. Jira has no
// scheduling attributes, so defaults apply.
func (a *Adapter) FetchProjects(ctx context.Context, _ tms.Handle) (map[string]tms.ProjectAttrs, error) {
	var projects []struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	}
	if err := a.client.get(ctx, "/rest/api/2/project", nil, &projects); err != nil {
		if isAuthError(err) {
			return nil, &tms.ConnectionError{Endpoint: a.client.base.String(), Err: err}
		}
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make(map[string]tms.ProjectAttrs, len(projects))
	for _, p := range projects {
		out[p.Key] = tms.ProjectAttrs{
			Name:        p.Key,
			Mode:        project.ModeScrum,
			OpenStatus:  "To Do",
			GracePeriod: project.DefaultGracePeriod,
			WorkHours:   []int{10, 19},
		}
	}
	return out, nil
}

type issue struct {
	ID     string                     `json:"id"`
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

type searchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []issue `json:"issues"`
}

// FetchTasks pages through all issues of the project.
func (a *Adapter) FetchTasks(ctx context.Context, _ tms.Handle, projectKey string) ([]tms.Task, error) {
	tasks, _, err := a.search(ctx, projectKey)
	return tasks, err
}

func (a *Adapter) search(ctx context.Context, projectKey string) ([]tms.Task, map[string]*user, error) {
	fields := "summary,assignee,status,duedate," + a.client.cfg.PointsField + "," + a.client.cfg.SprintField
	users := map[string]*user{}
	var tasks []tms.Task
	for start := 0; ; {
		q := url.Values{}
		q.Set("jql", fmt.Sprintf("project = %q ORDER BY key ASC", projectKey))
		q.Set("startAt", strconv.Itoa(start))
		q.Set("maxResults", strconv.Itoa(pageSize))
		q.Set("fields", fields)

		var res searchResult
		if err := a.client.get(ctx, "/rest/api/2/search", q, &res); err != nil {
			return nil, nil, fmt.Errorf("search %s: %w", projectKey, err)
		}
		for _, is := range res.Issues {
			t, u := a.toTask(is)
			tasks = append(tasks, t)
			if u != nil {
				users[u.id()] = u
			}
		}
		start += len(res.Issues)
		if len(res.Issues) == 0 || start >= res.Total {
			break
		}
	}
	return tasks, users, nil
}

func (a *Adapter) toTask(is issue) (tms.Task, *user) {
	t := tms.Task{
		ID:  is.ID,
		Key: is.Key,
		URL: a.client.base.String() + "/browse/" + is.Key,
	}
	decode := func(name string, v any) bool {
		raw, ok := is.Fields[name]
		if !ok || string(raw) == "null" {
			return false
		}
		if err := json.Unmarshal(raw, v); err != nil {
			a.logger.Debug("skipping malformed field", "issue", is.Key, "field", name, "error", err)
			return false
		}
		return true
	}

	decode("summary", &t.Summary)

	var assignee user
	var who *user
	if decode("assignee", &assignee) {
		t.Assignee = assignee.id()
		who = &assignee
	}

	var status struct {
		Name           string `json:"name"`
		StatusCategory struct {
			Key string `json:"key"`
		} `json:"statusCategory"`
	}
	if decode("status", &status) {
		t.Status = status.Name
		t.Done = status.StatusCategory.Key == "done"
	}

	var due string
	if decode("duedate", &due) {
		if d, err := time.Parse("2006-01-02", due); err == nil {
			t.DueDate = &d
		}
	}

	decode(a.client.cfg.PointsField, &t.Points)

	var sprints []struct {
		Name    string `json:"name"`
		State   string `json:"state"`
		EndDate string `json:"endDate"`
	}
	if decode(a.client.cfg.SprintField, &sprints) && len(sprints) > 0 {
		last := sprints[len(sprints)-1]
		t.Sprint = last.Name
		if end, err := time.Parse(time.RFC3339, last.EndDate); err == nil {
			t.SprintEnd = &end
		}
	}
	return t, who
}

// FetchHierarchy builds project → configured teams → members. Assignees
// outside every team hang directly under the project.
func (a *Adapter) FetchHierarchy(ctx context.Context, _ tms.Handle, projectKey string) (*tms.Entity, error) {
	_, users, err := a.search(ctx, projectKey)
	if err != nil {
		return nil, err
	}

	member := func(id string) *tms.Entity {
		e := &tms.Entity{ID: id, DisplayName: id, Kind: tms.KindMember}
		if u, ok := users[id]; ok {
			e.DisplayName = u.DisplayName
			e.AvatarURLs = u.AvatarURLs
		}
		return e
	}

	root := &tms.Entity{ID: projectKey, DisplayName: projectKey, Kind: tms.KindProject}
	placed := map[string]bool{}
	for _, team := range a.client.cfg.Teams[projectKey] {
		te := &tms.Entity{ID: team.ID, DisplayName: team.Name, Kind: tms.KindTeam}
		for _, id := range team.Members {
			te.Members = append(te.Members, member(id))
			placed[id] = true
		}
		root.Members = append(root.Members, te)
	}

	var loose []string
	for id := range users {
		if !placed[id] {
			loose = append(loose, id)
		}
	}
	sort.Strings(loose)
	for _, id := range loose {
		root.Members = append(root.Members, member(id))
	}
	return root, nil
}
