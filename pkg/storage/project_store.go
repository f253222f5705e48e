package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/etabotai/etabot/pkg/domain/project"
)

// ProjectStore implements project.Store on SQLite.
type ProjectStore struct {
	db          *sql.DB
	retryConfig retry.Config
	now         func() time.Time
}

var _ project.Store = (*ProjectStore)(nil)

// NewProjectStore wraps an opened database.
func NewProjectStore(db *sql.DB) *ProjectStore {
	return &ProjectStore{
		db: db,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
		now: time.Now,
	}
}

// Save inserts or replaces the project. The last writer wins.
func (s *ProjectStore) Save(ctx context.Context, p *project.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	workHours, err := json.Marshal(nonNil(p.WorkHours))
	if err != nil {
		return fmt.Errorf("marshal work hours: %w", err)
	}
	vacation, err := json.Marshal(nonNil(p.VacationDays))
	if err != nil {
		return fmt.Errorf("marshal vacation days: %w", err)
	}
	velocities, err := marshalMap(p.Velocities)
	if err != nil {
		return fmt.Errorf("marshal velocities: %w", err)
	}
	settings, err := marshalMap(p.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	p.UpdatedAt = s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO projects(owner, name, tms, mode, open_status, grace_period, work_hours, vacation_days, velocities, settings, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(owner, name) DO UPDATE SET
    tms = excluded.tms,
    mode = excluded.mode,
    open_status = excluded.open_status,
    grace_period = excluded.grace_period,
    work_hours = excluded.work_hours,
    vacation_days = excluded.vacation_days,
    velocities = excluded.velocities,
    settings = excluded.settings,
    updated_at = excluded.updated_at`,
		p.Owner, p.Name, p.TMS, p.Mode, p.OpenStatus, p.GracePeriod,
		string(workHours), string(vacation), velocities, settings,
		p.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.Name, err)
	}
	return nil
}

const projectColumns = `owner, name, tms, mode, open_status, grace_period, work_hours, vacation_days, velocities, settings, updated_at`

// Get loads one project.
func (s *ProjectStore) Get(ctx context.Context, owner, name string) (*project.Project, error) {
	retryer := retry.New[[]*project.Project](s.retryConfig)
	found, err := retryer.Do(ctx, func(ctx context.Context) ([]*project.Project, error) {
		return s.query(ctx, `SELECT `+projectColumns+` FROM projects WHERE owner = ? AND name = ?`, owner, name)
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", project.ErrProjectNotFound, name)
	}
	return found[0], nil
}

// List returns the owner's projects ordered by name. An empty owner lists all.
func (s *ProjectStore) List(ctx context.Context, owner string) ([]*project.Project, error) {
	retryer := retry.New[[]*project.Project](s.retryConfig)
	return retryer.Do(ctx, func(ctx context.Context) ([]*project.Project, error) {
		if owner == "" {
			return s.query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY owner, name`)
		}
		return s.query(ctx, `SELECT `+projectColumns+` FROM projects WHERE owner = ? ORDER BY name`, owner)
	})
}

func (s *ProjectStore) query(ctx context.Context, q string, args ...any) ([]*project.Project, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var out []*project.Project
	for rows.Next() {
		var (
			p                            project.Project
			workHours, vacation, updated string
			velocities, settings         sql.NullString
		)
		if err := rows.Scan(&p.Owner, &p.Name, &p.TMS, &p.Mode, &p.OpenStatus, &p.GracePeriod,
			&workHours, &vacation, &velocities, &settings, &updated); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if err := json.Unmarshal([]byte(workHours), &p.WorkHours); err != nil {
			return nil, fmt.Errorf("project %s work hours: %w", p.Name, err)
		}
		if err := json.Unmarshal([]byte(vacation), &p.VacationDays); err != nil {
			return nil, fmt.Errorf("project %s vacation days: %w", p.Name, err)
		}
		if p.Velocities, err = unmarshalMap(velocities); err != nil {
			return nil, fmt.Errorf("project %s velocities: %w", p.Name, err)
		}
		if p.Settings, err = unmarshalMap(settings); err != nil {
			return nil, fmt.Errorf("project %s settings: %w", p.Name, err)
		}
		if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return nil, fmt.Errorf("project %s updated_at: %w", p.Name, err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// SaveToken stores a new token or updates the one with the same owner, name
// and refresh token.
func (s *ProjectStore) SaveToken(ctx context.Context, t *project.OAuthToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
UPDATE oauth_tokens SET token_type = ?, access_token = ?, expires_at = ?
WHERE owner = ? AND name = ? AND refresh_token = ? AND refresh_token != ''`,
		t.TokenType, t.AccessToken, t.ExpiresAt, t.Owner, t.Name, t.RefreshToken)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO oauth_tokens(owner, name, token_type, access_token, refresh_token, expires_at)
VALUES (?, ?, ?, ?, ?, ?)`,
			t.Owner, t.Name, t.TokenType, t.AccessToken, t.RefreshToken, t.ExpiresAt); err != nil {
			return fmt.Errorf("insert token: %w", err)
		}
	}
	return tx.Commit()
}

// FindToken returns the single token matching f. More than one match is an
// *project.AmbiguousMatchError.
func (s *ProjectStore) FindToken(ctx context.Context, f project.TokenFilter) (*project.OAuthToken, error) {
	retryer := retry.New[[]*project.OAuthToken](s.retryConfig)
	candidates, err := retryer.Do(ctx, func(ctx context.Context) ([]*project.OAuthToken, error) {
		return s.tokens(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	return project.SelectToken(candidates, f)
}

func (s *ProjectStore) tokens(ctx context.Context, f project.TokenFilter) ([]*project.OAuthToken, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT owner, name, token_type, access_token, refresh_token, expires_at FROM oauth_tokens
WHERE (? = '' OR owner = ?) AND (? = '' OR name = ?)
ORDER BY id`, f.Owner, f.Owner, f.Name, f.Name)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var out []*project.OAuthToken
	for rows.Next() {
		var t project.OAuthToken
		if err := rows.Scan(&t.Owner, &t.Name, &t.TokenType, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func marshalMap(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalMap(s sql.NullString) (map[string]any, error) {
	if !s.Valid {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
