package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/henk-ai/fabric-backend/internal/logger"
)

// Gateway owns the authenticated catalog session: the cookie jar, the login
// exchange and transparent re-authentication when the session expires
// mid-harvest.
type Gateway struct {
	cfg    Config
	client *http.Client
	retry  RetryPolicy
	pacer  *Pacer
	log    *logger.Logger

	authenticated bool
}

func NewGateway(cfg Config, log *logger.Logger) (*Gateway, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Gateway{
		cfg: cfg,
		client: &http.Client{
			Jar:     jar,
			Timeout: cfg.RequestTimeout,
		},
		retry: DefaultRetryPolicy(),
		pacer: NewPacer(cfg.RequestsPerSecond, cfg.Burst, cfg.MinDelay, cfg.MaxDelay),
		log:   log.With("component", "ScraperGateway"),
	}, nil
}

// Authenticate performs the login form POST and verifies the session left the
// login page. Missing credentials and rejected logins are terminal.
func (g *Gateway) Authenticate(ctx context.Context) error {
	if g.cfg.Username == "" || g.cfg.Password == "" {
		return &AuthError{Reason: "FORMENS_USERNAME and FORMENS_PASSWORD must be set"}
	}
	g.log.Info("Authenticating catalog session", "base_url", g.cfg.BaseURL, "username", g.cfg.Username)

	form := url.Values{}
	form.Set("username", g.cfg.Username)
	form.Set("password", g.cfg.Password)

	err := g.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/login", strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", g.cfg.UserAgent)

		resp, err := g.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return &AuthError{Reason: fmt.Sprintf("login rejected with status %d", resp.StatusCode)}
		case resp.StatusCode >= 400:
			return &httpStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		}
		if sessionExpired(resp.Request.URL, body) {
			return &AuthError{Reason: "still on login page after submitting credentials"}
		}
		return nil
	})
	if err != nil {
		g.authenticated = false
		return err
	}
	g.authenticated = true
	g.log.Info("Catalog session established")
	return nil
}

// FetchPage retrieves one listing page of the stock catalog as raw HTML. An
// expired session triggers bounded transparent re-authentication.
func (g *Gateway) FetchPage(ctx context.Context, page int) (string, error) {
	if !g.authenticated {
		if err := g.Authenticate(ctx); err != nil {
			return "", err
		}
	}

	pageURL := g.cfg.StockURL
	if page > 1 {
		pageURL = fmt.Sprintf("%s?page=%d", g.cfg.StockURL, page)
	}

	for reauth := 0; ; reauth++ {
		if err := g.pacer.Wait(ctx); err != nil {
			return "", err
		}
		body, expired, err := g.fetch(ctx, pageURL)
		if err != nil {
			return "", err
		}
		if !expired {
			return body, nil
		}
		if reauth >= g.cfg.MaxReauthAttempts {
			g.authenticated = false
			return "", &AuthError{Reason: fmt.Sprintf("session expired and re-authentication gave up after %d attempts", reauth)}
		}
		g.log.Warn("Catalog session expired, re-authenticating", "page", page, "attempt", reauth+1)
		g.authenticated = false
		if err := g.Authenticate(ctx); err != nil {
			return "", err
		}
	}
}

func (g *Gateway) fetch(ctx context.Context, pageURL string) (body string, expired bool, err error) {
	err = g.retry.Do(ctx, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("User-Agent", g.cfg.UserAgent)

		resp, doErr := g.client.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if readErr != nil {
			return readErr
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			expired = true
			return nil
		case resp.StatusCode >= 400:
			return &httpStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		}
		expired = sessionExpired(resp.Request.URL, raw)
		body = string(raw)
		return nil
	})
	return body, expired, err
}

// sessionExpired recognizes the catalog's login wall: either the request was
// redirected to a login URL or the body carries a password form.
func sessionExpired(finalURL *url.URL, body []byte) bool {
	if finalURL != nil && strings.Contains(strings.ToLower(finalURL.Path), "login") {
		return true
	}
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, `type="password"`) || strings.Contains(lower, "type='password'")
}
