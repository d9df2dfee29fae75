// Package apiclient talks to the Clipverse HTTP API on behalf of the terminal
// client. It implements the feed, session and engagement collaborators.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/feed"
	"github.com/clipverse/backend/internal/models"
)

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 10 * time.Second

// TokenSource yields the bearer token for authenticated calls. An empty
// token sends the request anonymously.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client for the Clipverse API.
type Client struct {
	base   *url.URL
	hc     *http.Client
	tokens TokenSource
}

// New returns a client for baseURL. A non-positive timeout uses DefaultTimeout.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api url %q must be absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 2 * time.Second}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConnsPerHost: 8,
	}
	return &Client{
		base: base,
		hc:   &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

// UseTokens attaches the session used for authenticated calls. It is set
// after construction because the session itself signs in through the client.
func (c *Client) UseTokens(tokens TokenSource) {
	c.tokens = tokens
}

type errorBody struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

// do performs one call carrying the session's bearer token.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return c.send(ctx, false, method, path, query, body, out)
}

// anonymous skips the token so a refresh never recurses into itself.
func (c *Client) anonymous(ctx context.Context, method, path string, body, out any) error {
	return c.send(ctx, true, method, path, nil, body, out)
}

func (c *Client) send(ctx context.Context, anonymous bool, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil && !anonymous {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return apperr.E(apperr.KindTransient, "Could not reach the server, please try again.", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.E(apperr.KindDecode, "The server sent an unexpected response.", fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &body)

	kind := body.Kind
	if kind == apperr.KindUnknown {
		kind = apperr.FromStatus(resp.StatusCode)
	}
	if kind == apperr.KindUnknown {
		kind = apperr.KindTransient
	}
	message := body.Error
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return apperr.E(kind, message, fmt.Errorf("%s %s: %s", resp.Request.Method, resp.Request.URL.Path, resp.Status))
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

type tokensBody struct {
	Tokens models.SessionTokens `json:"tokens"`
}

// Login exchanges credentials for session tokens.
func (c *Client) Login(ctx context.Context, email, password string) (models.SessionTokens, error) {
	var out tokensBody
	if err := c.anonymous(ctx, http.MethodPost, "/api/v1/auth/login", credentials{Email: email, Password: password}, &out); err != nil {
		return models.SessionTokens{}, err
	}
	return out.Tokens, nil
}

// Refresh rotates a refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	var out tokensBody
	if err := c.anonymous(ctx, http.MethodPost, "/api/v1/auth/refresh", refreshBody{RefreshToken: refreshToken}, &out); err != nil {
		return models.SessionTokens{}, err
	}
	return out.Tokens, nil
}

// Logout revokes a refresh token.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.anonymous(ctx, http.MethodPost, "/api/v1/auth/logout", refreshBody{RefreshToken: refreshToken}, nil)
}

// FetchPage loads one feed page. Items carry only the creator id.
func (c *Client) FetchPage(ctx context.Context, q feed.Query) (feed.Page, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(max(q.Page, 1)))
	query.Set("pageSize", strconv.Itoa(q.Limit()))

	var page feed.Page
	if err := c.do(ctx, http.MethodGet, "/api/v1/feeds/"+url.PathEscape(string(q.Variant)), query, nil, &page); err != nil {
		return feed.Page{}, err
	}
	return page, nil
}

type subscriptionsBody struct {
	CreatorIDs []string `json:"creatorIds"`
}

// SubscribedCreators lists the creators the signed-in viewer follows. The
// server derives the viewer from the bearer token.
func (c *Client) SubscribedCreators(ctx context.Context, _ string) ([]string, error) {
	var out subscriptionsBody
	if err := c.do(ctx, http.MethodGet, "/api/v1/me/subscriptions", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.CreatorIDs, nil
}

// Profile resolves one creator.
func (c *Client) Profile(ctx context.Context, id string) (models.Creator, error) {
	var p models.Profile
	if err := c.do(ctx, http.MethodGet, "/api/v1/profiles/"+url.PathEscape(id), nil, nil, &p); err != nil {
		return models.Creator{}, err
	}
	return models.CreatorFromProfile(p), nil
}

// Like likes a video as the signed-in viewer.
func (c *Client) Like(ctx context.Context, videoID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/videos/"+url.PathEscape(videoID)+"/like", nil, nil, nil)
}

// Unlike removes the viewer's like.
func (c *Client) Unlike(ctx context.Context, videoID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/videos/"+url.PathEscape(videoID)+"/like", nil, nil, nil)
}

// Subscribe follows a creator.
func (c *Client) Subscribe(ctx context.Context, creatorID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/creators/"+url.PathEscape(creatorID)+"/subscription", nil, nil, nil)
}

// Unsubscribe stops following a creator.
func (c *Client) Unsubscribe(ctx context.Context, creatorID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/creators/"+url.PathEscape(creatorID)+"/subscription", nil, nil, nil)
}

// RecordView counts a view of videoID.
func (c *Client) RecordView(ctx context.Context, videoID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/videos/"+url.PathEscape(videoID)+"/views", nil, nil, nil)
}
