package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/mediagallery/gallery-api/internal/config"
	"github.com/mediagallery/gallery-api/internal/observability"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

var (
	errUserInfoStatus  = errors.New("userinfo request failed")
	errUserInfoInvalid = errors.New("userinfo missing subject or email")
)

// OAuthProvider drives the redirect-based authorization code flow.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*FederatedIdentity, error)
}

// GoogleOAuthProvider resolves the identity from the id_token returned with the
// access token. The userinfo endpoint is only consulted when Google omits it.
type GoogleOAuthProvider struct {
	oauth       *oauth2.Config
	verifier    FederatedVerifier
	httpClient  *http.Client
	userInfoURL string
}

func NewGoogleOAuthProvider(cfg *config.Config, verifier FederatedVerifier) *GoogleOAuthProvider {
	return &GoogleOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		verifier:    verifier,
		httpClient:  NewInstrumentedHTTPClient(10 * time.Second),
		userInfoURL: googleUserInfoURL,
	}
}

func (p *GoogleOAuthProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

func (p *GoogleOAuthProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.oauth.Exchange(p.clientContext(ctx), code)
}

func (p *GoogleOAuthProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*FederatedIdentity, error) {
	if idToken, _ := token.Extra("id_token").(string); idToken != "" && p.verifier != nil {
		return p.verifier.VerifyAssertion(ctx, idToken, p.oauth.ClientID)
	}
	return p.userInfo(ctx, token)
}

func (p *GoogleOAuthProvider) userInfo(ctx context.Context, token *oauth2.Token) (*FederatedIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.oauth.Client(p.clientContext(ctx), token).Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", errUserInfoStatus, resp.StatusCode)
	}

	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if claims.Sub == "" || claims.Email == "" {
		return nil, errUserInfoInvalid
	}
	return &FederatedIdentity{
		Subject:       claims.Sub,
		Email:         strings.ToLower(claims.Email),
		Name:          claims.Name,
		AvatarURL:     claims.Picture,
		EmailVerified: claims.EmailVerified,
	}, nil
}

func (p *GoogleOAuthProvider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// fetchCodeFlowIdentity exchanges the code and resolves the identity, timing
// each leg separately.
func fetchCodeFlowIdentity(ctx context.Context, provider OAuthProvider, code string) (*FederatedIdentity, error) {
	var token *oauth2.Token
	err := timeOAuthStage(ctx, "exchange", func() (err error) {
		token, err = provider.Exchange(ctx, code)
		return err
	})
	if err != nil {
		return nil, err
	}
	var identity *FederatedIdentity
	err = timeOAuthStage(ctx, "userinfo", func() (err error) {
		identity, err = provider.FetchUserInfo(ctx, token)
		if err == nil && identity == nil {
			err = errUserInfoInvalid
		}
		return err
	})
	return identity, err
}

func timeOAuthStage(ctx context.Context, stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	observability.RecordGoogleOAuthRequestDuration(ctx, stage, oauthStatus(err), time.Since(start))
	if err != nil {
		observability.RecordGoogleOAuthError(ctx, classifyOAuthError(err))
	}
	return err
}

func oauthStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func classifyOAuthError(err error) string {
	var (
		netErr      net.Error
		retrieveErr *oauth2.RetrieveError
	)
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, ErrAssertionRejected):
		return "assertion_rejected"
	case errors.Is(err, errUserInfoStatus):
		return "userinfo_status"
	case errors.Is(err, errUserInfoInvalid):
		return "invalid_userinfo"
	case errors.As(err, &retrieveErr):
		return "oauth2_exchange"
	default:
		return "other"
	}
}
