package jira

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/etabotai/etabot/pkg/domain/tms"
)

func issueJSON(id, key, assignee, status string, points float64) map[string]any {
	fields := map[string]any{
		"summary":           "Issue " + key,
		"status":            map[string]any{"name": status, "statusCategory": map[string]any{"key": map[bool]string{true: "done", false: "new"}[status == "Done"]}},
		"duedate":           "2026-04-01",
		"customfield_10016": points,
		"customfield_10020": []any{map[string]any{"name": "Sprint 7", "endDate": "2026-03-20T12:00:00Z"}},
	}
	if assignee != "" {
		fields["assignee"] = map[string]any{
			"accountId":   assignee,
			"displayName": "User " + assignee,
			"avatarUrls":  map[string]string{"48x48": "https://avatars.example/" + assignee},
		}
	} else {
		fields["assignee"] = nil
	}
	return map[string]any{"id": id, "key": key, "fields": fields}
}

func newJiraServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var searches int32
	issues := []any{
		issueJSON("1", "BW-1", "u1", "Done", 3),
		issueJSON("2", "BW-2", "u2", "In Progress", 2),
		issueJSON("3", "BW-3", "", "To Do", 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/myself", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"name": "ann", "displayName": "Ann"})
	})
	mux.HandleFunc("/rest/api/2/project", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]any{map[string]any{"key": "BW", "name": "Buckwheat"}})
	})
	mux.HandleFunc("/rest/api/2/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&searches, 1)
		start, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		end := start + 2
		if end > len(issues) {
			end = len(issues)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"startAt": start, "maxResults": 2, "total": len(issues), "issues": issues[start:end],
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &searches
}

func newTestAdapter(t *testing.T, url string, token string, teams map[string][]Team) *Adapter {
	t.Helper()
	c, err := NewClient(Config{Endpoint: url, Token: &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, Teams: teams},
		WithRetry(2, time.Millisecond), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	return NewAdapter(c, nil)
}

func TestAdapter_ConnectAndFetch(t *testing.T) {
	srv, searches := newJiraServer(t)
	a := newTestAdapter(t, srv.URL, "tok", nil)
	ctx := context.Background()

	h, err := a.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if h.Account() == "" || h.Account()[:4] != "ann@" {
		t.Errorf("Account() = %q", h.Account())
	}

	projects, err := a.FetchProjects(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	if p, ok := projects["BW"]; !ok || p.Mode != "scrum" {
		t.Errorf("FetchProjects() = %+v", projects)
	}

	tasks, err := a.FetchTasks(ctx, h, "BW")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 3 {
		t.Fatalf("FetchTasks() = %d tasks, want 3", len(tasks))
	}
	if atomic.LoadInt32(searches) != 2 {
		t.Errorf("search pages = %d, want 2", *searches)
	}
	first := tasks[0]
	if !first.Done || first.Points != 3 || first.Sprint != "Sprint 7" || first.Assignee != "u1" {
		t.Errorf("task = %+v", first)
	}
	if first.DueDate == nil || first.DueDate.Format("2006-01-02") != "2026-04-01" {
		t.Errorf("DueDate = %v", first.DueDate)
	}
	if first.SprintEnd == nil || first.URL != srv.URL+"/browse/BW-1" {
		t.Errorf("SprintEnd/URL = %v %q", first.SprintEnd, first.URL)
	}
	if tasks[2].Assignee != "" || tasks[1].Done {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestAdapter_Hierarchy(t *testing.T) {
	srv, _ := newJiraServer(t)
	teams := map[string][]Team{"BW": {{ID: "core", Name: "Core", Members: []string{"u1"}}}}
	a := newTestAdapter(t, srv.URL, "tok", teams)

	root, err := a.FetchHierarchy(context.Background(), nil, "BW")
	if err != nil {
		t.Fatal(err)
	}
	if root.Kind != tms.KindProject || len(root.Members) != 2 {
		t.Fatalf("root = %+v", root)
	}
	team := root.Members[0]
	if team.Kind != tms.KindTeam || team.Members[0].DisplayName != "User u1" {
		t.Errorf("team = %+v", team)
	}
	if loose := root.Members[1]; loose.ID != "u2" || loose.AvatarURLs["48x48"] == "" {
		t.Errorf("loose member = %+v", loose)
	}
}

func TestAdapter_ConnectRejected(t *testing.T) {
	srv, _ := newJiraServer(t)
	a := newTestAdapter(t, srv.URL, "wrong", nil)

	_, err := a.Connect(context.Background())
	if !errors.Is(err, tms.ErrConnection) {
		t.Fatalf("Connect() error = %v, want ErrConnection", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("error = %#v", err)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"name":"ann"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, Username: "ann", APIToken: "x"}, WithRetry(3, time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	var me user
	if err := c.get(context.Background(), "/rest/api/2/myself", nil, &me); err != nil {
		t.Fatalf("get() error = %v", err)
	}
	if me.Name != "ann" || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("me = %+v after %d calls", me, calls)
	}
}

func TestNewClient_InvalidEndpoint(t *testing.T) {
	if _, err := NewClient(Config{Endpoint: "not a url"}); err == nil {
		t.Error("expected error for invalid endpoint")
	}
}
