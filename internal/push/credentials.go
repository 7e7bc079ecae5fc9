package push

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"

	apperrors "github.com/Abir7109/neon-trace-backend/internal/errors"
	"github.com/Abir7109/neon-trace-backend/internal/metrics"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"

	messagingScope    = "https://www.googleapis.com/auth/firebase.messaging"
	jwtBearerGrant    = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionLifetime = time.Hour

	// A cached token is only handed out while it still has this much
	// validity left.
	expiryMargin = 5 * time.Minute

	exchangeTimeout = 20 * time.Second
)

// CredentialCache produces a valid bearer token for the modern delivery
// protocol, refreshing via the JWT-bearer exchange only when the cached token
// is within its expiry margin.
type CredentialCache struct {
	account    *ServiceAccount
	signingKey *rsa.PrivateKey
	clock      clockwork.Clock
	httpClient *http.Client
	tokenURL   string // token endpoint URL (configurable for testing)

	// Refreshes are serialized: the observed behavior tolerates concurrent
	// refreshes (last writer wins), but holding the lock across the exchange
	// avoids redundant signing and network round trips.
	mu     chan struct{}
	token  string
	expiry time.Time
}

// NewCredentialCache validates the service identity up front so a malformed
// key fails at startup rather than on the first broadcast.
func NewCredentialCache(account *ServiceAccount, clock clockwork.Clock) (*CredentialCache, error) {
	key, err := account.SigningKey()
	if err != nil {
		return nil, err
	}

	tokenURL := account.TokenURI
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}

	c := &CredentialCache{
		account:    account,
		signingKey: key,
		clock:      clock,
		httpClient: &http.Client{Timeout: exchangeTimeout},
		tokenURL:   tokenURL,
		mu:         make(chan struct{}, 1),
	}
	return c, nil
}

// Token returns a bearer token with at least five minutes of validity
// remaining, performing no I/O while the cached one is still fresh.
func (c *CredentialCache) Token(ctx context.Context) (string, error) {
	select {
	case c.mu <- struct{}{}:
	case <-ctx.Done():
		return "", apperrors.TransportError("token request cancelled", ctx.Err())
	}
	defer func() { <-c.mu }()

	if c.token != "" && c.expiry.After(c.clock.Now().Add(expiryMargin)) {
		return c.token, nil
	}

	token, expiresIn, err := c.refresh(ctx)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()

	c.token = token
	c.expiry = c.clock.Now().Add(time.Duration(expiresIn) * time.Second)
	return c.token, nil
}

func (c *CredentialCache) refresh(ctx context.Context) (token string, expiresIn int, err error) {
	assertion, err := c.signAssertion()
	if err != nil {
		return "", 0, err
	}

	data := url.Values{}
	data.Set("grant_type", jwtBearerGrant)
	data.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, apperrors.InternalError("failed to build token exchange request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, apperrors.TransportError("token exchange request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, apperrors.TransportError("failed to read token exchange response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, apperrors.ProviderError("token exchange rejected", resp.StatusCode, string(body))
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", 0, apperrors.ProviderError("token exchange returned malformed JSON", resp.StatusCode, string(body))
	}
	if result.AccessToken == "" {
		return "", 0, apperrors.ProviderError("token exchange returned no access token", resp.StatusCode, string(body))
	}

	return result.AccessToken, result.ExpiresIn, nil
}

// signAssertion builds the compact RS256-signed claims structure exchanged
// for an access token.
func (c *CredentialCache) signAssertion() (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: c.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", apperrors.InternalError("failed to create assertion signer", err)
	}

	now := c.clock.Now()
	claims := jwt.Claims{
		Issuer:   c.account.ClientEmail,
		Audience: jwt.Audience{c.tokenURL},
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(assertionLifetime)),
	}
	scoped := struct {
		Scope string `json:"scope"`
	}{Scope: messagingScope}

	assertion, err := jwt.Signed(signer).Claims(claims).Claims(scoped).CompactSerialize()
	if err != nil {
		return "", apperrors.InternalError("failed to sign assertion", err)
	}
	return assertion, nil
}
