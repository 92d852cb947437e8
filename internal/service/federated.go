package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mediagallery/gallery-api/internal/observability"
)

const googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

var ErrAssertionRejected = errors.New("federated assertion rejected")

// FederatedIdentity is what an identity provider vouches for.
type FederatedIdentity struct {
	Subject       string
	Email         string
	Name          string
	AvatarURL     string
	EmailVerified bool
}

// FederatedVerifier checks a provider-issued assertion for the expected audience.
type FederatedVerifier interface {
	VerifyAssertion(ctx context.Context, token, audience string) (*FederatedIdentity, error)
}

// GoogleIDTokenVerifier validates Google ID tokens through the tokeninfo endpoint,
// which checks the signature server-side.
type GoogleIDTokenVerifier struct {
	client   *http.Client
	endpoint string
	now      func() time.Time
}

func NewGoogleIDTokenVerifier(client *http.Client, endpoint string) *GoogleIDTokenVerifier {
	if client == nil {
		client = NewInstrumentedHTTPClient(10 * time.Second)
	}
	if endpoint == "" {
		endpoint = googleTokenInfoURL
	}
	return &GoogleIDTokenVerifier{client: client, endpoint: endpoint, now: time.Now}
}

// NewInstrumentedHTTPClient returns a client whose spans and metrics flow
// through the global OTel providers.
func NewInstrumentedHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

type googleTokenInfo struct {
	Aud           string `json:"aud"`
	Iss           string `json:"iss"`
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Exp           string `json:"exp"`
}

func (v *GoogleIDTokenVerifier) VerifyAssertion(ctx context.Context, token, audience string) (*FederatedIdentity, error) {
	start := time.Now()
	info, err := v.fetch(ctx, token)
	observability.RecordGoogleOAuthRequestDuration(ctx, "tokeninfo", oauthStatus(err), time.Since(start))
	if err != nil {
		observability.RecordGoogleOAuthError(ctx, classifyOAuthError(err))
		return nil, err
	}
	identity, err := v.check(info, audience)
	if err != nil {
		observability.RecordGoogleOAuthError(ctx, "invalid_assertion")
		return nil, err
	}
	return identity, nil
}

func (v *GoogleIDTokenVerifier) fetch(ctx context.Context, token string) (*googleTokenInfo, error) {
	u, err := url.Parse(v.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse tokeninfo endpoint: %w", err)
	}
	q := u.Query()
	q.Set("id_token", token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tokeninfo status: %d", ErrAssertionRejected, resp.StatusCode)
	}
	var info googleTokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode tokeninfo: %w", err)
	}
	return &info, nil
}

func (v *GoogleIDTokenVerifier) check(info *googleTokenInfo, audience string) (*FederatedIdentity, error) {
	if audience == "" || info.Aud != audience {
		return nil, fmt.Errorf("%w: audience mismatch", ErrAssertionRejected)
	}
	if info.Iss != "accounts.google.com" && info.Iss != "https://accounts.google.com" {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrAssertionRejected, info.Iss)
	}
	exp, err := strconv.ParseInt(info.Exp, 10, 64)
	if err != nil || !v.now().Before(time.Unix(exp, 0)) {
		return nil, fmt.Errorf("%w: expired", ErrAssertionRejected)
	}
	if info.Sub == "" || info.Email == "" {
		return nil, fmt.Errorf("%w: missing subject or email", ErrAssertionRejected)
	}
	return &FederatedIdentity{
		Subject:       info.Sub,
		Email:         strings.ToLower(info.Email),
		Name:          info.Name,
		AvatarURL:     info.Picture,
		EmailVerified: info.EmailVerified == "true",
	}, nil
}
