package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNoIDToken is returned when the provider answered without an ID token
var ErrNoIDToken = errors.New("token response carries no id_token")

// TokenSource supplies the bearer token attached to each outbound call
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token calls f(ctx)
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// OAuth2Source exposes the ID token of an oauth2 token source. The gateway
// only accepts ID tokens, so the access token is used only when explicitly
// allowed (generic OIDC issuers that skip the token_use check).
type OAuth2Source struct {
	src              oauth2.TokenSource
	allowAccessToken bool
}

// NewOAuth2Source wraps src. The source should be reusable, see RefreshTokenSource.
func NewOAuth2Source(src oauth2.TokenSource, allowAccessToken bool) *OAuth2Source {
	return &OAuth2Source{src: src, allowAccessToken: allowAccessToken}
}

// contextTokenSource is an oauth2 token source whose refresh can be bound to
// the caller's context.
type contextTokenSource interface {
	TokenContext(ctx context.Context) (*oauth2.Token, error)
}

// Token returns the current ID token, refreshing it through the provider when
// the cached one expired. Sources built by RefreshTokenSource refresh under
// ctx; any other oauth2 source keeps the context it was created with.
func (s *OAuth2Source) Token(ctx context.Context) (string, error) {
	var (
		tok *oauth2.Token
		err error
	)
	if cs, ok := s.src.(contextTokenSource); ok {
		tok, err = cs.TokenContext(ctx)
	} else {
		tok, err = s.src.Token()
	}
	if err != nil {
		return "", fmt.Errorf("refresh session: %w", err)
	}
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		return idToken, nil
	}
	if s.allowAccessToken && tok.AccessToken != "" {
		return tok.AccessToken, nil
	}
	return "", ErrNoIDToken
}

// RefreshTokenSource builds a caching token source that redeems refreshToken at
// the provider's token endpoint whenever the current token expires. Public
// app clients leave clientSecret empty. An *http.Client stored under
// oauth2.HTTPClient in ctx is used for every refresh. Through OAuth2Source
// each refresh runs under the context of the call that needed it; the plain
// Token method falls back to ctx.
func RefreshTokenSource(ctx context.Context, endpoint oauth2.Endpoint, clientID, clientSecret, refreshToken string) oauth2.TokenSource {
	client, _ := ctx.Value(oauth2.HTTPClient).(*http.Client)
	return &refreshSource{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     endpoint,
		},
		client: client,
		base:   ctx,
		tok:    &oauth2.Token{RefreshToken: refreshToken},
	}
}

type refreshSource struct {
	conf   *oauth2.Config
	client *http.Client
	base   context.Context

	mu  sync.Mutex // guards tok
	tok *oauth2.Token
}

// Token implements oauth2.TokenSource
func (s *refreshSource) Token() (*oauth2.Token, error) {
	return s.TokenContext(s.base)
}

// TokenContext returns the cached token or refreshes it under ctx.
func (s *refreshSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok.Valid() {
		return s.tok, nil
	}
	if s.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	}
	tok, err := s.conf.TokenSource(ctx, s.tok).Token()
	if err != nil {
		return nil, err
	}
	s.tok = tok
	return tok, nil
}
