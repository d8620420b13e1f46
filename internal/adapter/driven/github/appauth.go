package github

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gh "github.com/google/go-github/v82/github"
)

// GitHub App JWTs expire after 10 minutes max; installation tokens after an
// hour. Both are refreshed a little early so an in-flight request never
// carries a token that expires mid-call.
const (
	appJWTLifetime     = 10 * time.Minute
	tokenRefreshMargin = 5 * time.Minute
)

// installationTokenSource mints installation access tokens from a GitHub App
// private key and caches them until close to expiry.
type installationTokenSource struct {
	appID          string
	key            *rsa.PrivateKey
	installationID int64

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// newInstallationTokenSource loads the app's private key and discovers the
// installation the app runs under. Exactly one installation is expected; with
// more than one, the first is used and a warning is logged.
func newInstallationTokenSource(ctx context.Context, appID, keyPath string) (*installationTokenSource, error) {
	pemBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read app private key: %w", err)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse app private key: %w", err)
	}

	source := &installationTokenSource{appID: appID, key: key}

	appJWT, err := source.signJWT(time.Now())
	if err != nil {
		return nil, err
	}

	appClient := gh.NewClient(nil).WithAuthToken(appJWT)
	installations, _, err := appClient.Apps.ListInstallations(ctx, &gh.ListOptions{PerPage: 10})
	if err != nil {
		return nil, fmt.Errorf("list app installations: %w", err)
	}
	if len(installations) == 0 {
		return nil, errors.New("github app has no installations")
	}
	if len(installations) > 1 {
		slog.Warn("github app has multiple installations, using the first",
			"count", len(installations),
			"account", installations[0].GetAccount().GetLogin(),
		)
	}

	source.installationID = installations[0].GetID()
	slog.Info("github app authenticated",
		"app_id", appID,
		"installation_id", source.installationID,
		"account", installations[0].GetAccount().GetLogin(),
	)

	return source, nil
}

// signJWT creates a short-lived RS256 app JWT. The iat claim is backdated a
// minute to tolerate clock drift between us and GitHub.
func (s *installationTokenSource) signJWT(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iat": now.Add(-time.Minute).Unix(),
		"exp": now.Add(appJWTLifetime).Unix(),
		"iss": s.appID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign app jwt: %w", err)
	}

	return signed, nil
}

// Token returns a valid installation access token, minting a fresh one when
// the cached token is absent or close to expiry.
func (s *installationTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.token != "" && now.Before(s.expiry.Add(-tokenRefreshMargin)) {
		return s.token, nil
	}

	appJWT, err := s.signJWT(now)
	if err != nil {
		return "", err
	}

	appClient := gh.NewClient(nil).WithAuthToken(appJWT)
	installationToken, _, err := appClient.Apps.CreateInstallationToken(ctx, s.installationID, nil)
	if err != nil {
		return "", fmt.Errorf("create installation token: %w", err)
	}

	s.token = installationToken.GetToken()
	s.expiry = installationToken.GetExpiresAt().Time
	slog.Debug("refreshed installation token", "expires_at", s.expiry)

	return s.token, nil
}

// installationTransport injects the current installation token into every
// outgoing request.
type installationTransport struct {
	base   http.RoundTripper
	source *installationTokenSource
}

func (t *installationTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token(req.Context())
	if err != nil {
		return nil, err
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	return base.RoundTrip(clone)
}
