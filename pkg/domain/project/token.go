package project

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// OAuthToken is a stored OAuth2 credential for a source-system account.
type OAuthToken struct {
	Owner        string
	Name         string
	TokenType    string
	AccessToken  string
	RefreshToken string
	// ExpiresAt is a Unix timestamp; zero means the token does not expire.
	ExpiresAt int64
}

// IsExpired reports whether the token has expired at now.
func (t *OAuthToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != 0 && now.Unix() > t.ExpiresAt
}

// OAuth2 converts the stored token to an oauth2.Token.
func (t *OAuthToken) OAuth2() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
	}
	if t.ExpiresAt != 0 {
		tok.Expiry = time.Unix(t.ExpiresAt, 0).UTC()
	}
	return tok
}

// Update copies a refreshed oauth2.Token into t.
func (t *OAuthToken) Update(tok *oauth2.Token) {
	t.AccessToken = tok.AccessToken
	if tok.TokenType != "" {
		t.TokenType = tok.TokenType
	}
	if tok.RefreshToken != "" {
		t.RefreshToken = tok.RefreshToken
	}
	if tok.Expiry.IsZero() {
		t.ExpiresAt = 0
	} else {
		t.ExpiresAt = tok.Expiry.Unix()
	}
}

// TokenFilter selects tokens; empty fields match anything.
type TokenFilter struct {
	Owner        string
	Name         string
	AccessToken  string
	RefreshToken string
}

// Matches reports whether t satisfies every non-empty field of f.
func (f TokenFilter) Matches(t *OAuthToken) bool {
	return (f.Owner == "" || f.Owner == t.Owner) &&
		(f.Name == "" || f.Name == t.Name) &&
		(f.AccessToken == "" || f.AccessToken == t.AccessToken) &&
		(f.RefreshToken == "" || f.RefreshToken == t.RefreshToken)
}

// String describes the filter without exposing secrets.
func (f TokenFilter) String() string {
	var parts []string
	if f.Owner != "" {
		parts = append(parts, "owner="+f.Owner)
	}
	if f.Name != "" {
		parts = append(parts, "name="+f.Name)
	}
	if f.AccessToken != "" {
		parts = append(parts, "access_token=***")
	}
	if f.RefreshToken != "" {
		parts = append(parts, "refresh_token=***")
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// SelectToken returns the single token among candidates matching f.
// No match returns ErrTokenNotFound, several return *AmbiguousMatchError.
func SelectToken(candidates []*OAuthToken, f TokenFilter) (*OAuthToken, error) {
	var found []*OAuthToken
	for _, t := range candidates {
		if t != nil && f.Matches(t) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return nil, ErrTokenNotFound
	case 1:
		return found[0], nil
	default:
		return nil, &AmbiguousMatchError{Filter: f.String(), Matches: len(found)}
	}
}
