package spapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	perr "mixshift/internal/platform/errors"
)

const (
	tokenURLDefault = "https://api.amazon.com/auth/o2/token"
	tokenSkew       = 60 * time.Second
)

// TokenOptions configures the LWA exchange
type TokenOptions struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTP         *http.Client
}

type cachedToken struct {
	value   string
	expires time.Time
}

// TokenProvider swaps a seller refresh token for an access token and caches
// it per seller until shortly before expiry
type TokenProvider struct {
	opts  TokenOptions
	http  *http.Client
	now   func() time.Time
	mu    sync.Mutex
	cache map[string]cachedToken
}

// NewTokenProvider returns a provider with defaults filled in
func NewTokenProvider(o TokenOptions) *TokenProvider {
	if o.TokenURL == "" {
		o.TokenURL = tokenURLDefault
	}
	hc := o.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &TokenProvider{opts: o, http: hc, now: time.Now, cache: map[string]cachedToken{}}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// AccessToken returns a cached token for sellerID unless force is set or it is near expiry
func (p *TokenProvider) AccessToken(ctx context.Context, sellerID, refreshToken string, force bool) (string, error) {
	p.mu.Lock()
	tok, ok := p.cache[sellerID]
	p.mu.Unlock()
	if ok && !force && p.now().Before(tok.expires) {
		return tok.value, nil
	}
	if refreshToken == "" {
		return "", perr.Newf(perr.ErrorCodeUnauthorized, "seller %s has no refresh token", sellerID)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {p.opts.ClientID},
		"client_secret": {p.opts.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUnknown, "lwa new request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	resp, err := p.http.Do(req)
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUpstream, "lwa token exchange")
	}
	defer func() { _ = resp.Body.Close() }()

	var out tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUpstream, "lwa decode status %d", resp.StatusCode)
	}
	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return "", perr.Newf(perr.ErrorCodeUnauthorized, "lwa %s: %s", out.Error, out.Description)
	case resp.StatusCode >= 300:
		return "", perr.Newf(perr.ErrorCodeUpstream, "lwa status %d", resp.StatusCode)
	case out.AccessToken == "":
		return "", perr.New(perr.ErrorCodeUpstream, "lwa returned no access token")
	}

	ttl := time.Duration(out.ExpiresIn)*time.Second - tokenSkew
	if ttl <= 0 {
		ttl = time.Second
	}
	p.mu.Lock()
	p.cache[sellerID] = cachedToken{value: out.AccessToken, expires: p.now().Add(ttl)}
	p.mu.Unlock()
	return out.AccessToken, nil
}
