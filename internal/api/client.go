// Package api is the request/response client for session acquisition,
// history and stats.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DoyleJ11/duel/internal/failure"
	"github.com/DoyleJ11/duel/internal/game"
)

type CreateRequest struct {
	GameKind  game.Kind `json:"gameKind"`
	PartnerID string    `json:"partnerId"`
}

type HistoryPage struct {
	Sessions []*game.Session `json:"sessions"`
	NextPage int             `json:"nextPage,omitempty"`
}

type Stats struct {
	Played        int `json:"played"`
	Wins          int `json:"wins"`
	Losses        int `json:"losses"`
	Draws         int `json:"draws"`
	CurrentStreak int `json:"currentStreak"`
	BestStreak    int `json:"bestStreak"`
}

// Client talks to the game service's HTTP endpoints on behalf of one player.
type Client struct {
	baseURL    string
	credential string
	httpClient *http.Client
}

func NewClient(baseURL, credential string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		credential: credential,
		httpClient: httpClient,
	}
}

// CreateSession starts a new session against partnerID.
func (c *Client) CreateSession(ctx context.Context, kind game.Kind, partnerID string) (*game.Session, error) {
	body, err := json.Marshal(CreateRequest{GameKind: kind, PartnerID: partnerID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	var sess game.Session
	status, err := c.do(ctx, http.MethodPost, "/sessions", nil, body, &sess, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("create session: unexpected status %d", status)
	}
	return &sess, nil
}

// ActiveSession returns the open session with partnerID, or nil when there
// is none.
func (c *Client) ActiveSession(ctx context.Context, kind game.Kind, partnerID string) (*game.Session, error) {
	q := url.Values{"gameKind": {string(kind)}, "partnerId": {partnerID}}
	var sess game.Session
	status, err := c.do(ctx, http.MethodGet, "/sessions/active", q, nil, &sess, http.StatusOK, http.StatusNoContent)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &sess, nil
}

// History lists finished sessions, newest first. page starts at 1.
func (c *Client) History(ctx context.Context, kind game.Kind, page, pageSize int) (*HistoryPage, error) {
	q := url.Values{"page": {strconv.Itoa(page)}, "pageSize": {strconv.Itoa(pageSize)}}
	if kind != "" {
		q.Set("gameKind", string(kind))
	}
	var out HistoryPage
	if _, err := c.do(ctx, http.MethodGet, "/sessions/history", q, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Stats(ctx context.Context, kind game.Kind) (*Stats, error) {
	q := url.Values{}
	if kind != "" {
		q.Set("gameKind", string(kind))
	}
	var out Stats
	if _, err := c.do(ctx, http.MethodGet, "/stats", q, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte, out any, accept ...int) (int, error) {
	if strings.TrimSpace(c.credential) == "" {
		return 0, failure.New(failure.AuthFailure, "missing credential")
	}
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.credential)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, failure.Wrap(failure.TransportFailure, method+" "+path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return resp.StatusCode, failure.New(failure.AuthFailure, "credential refused")
	}
	ok := false
	for _, s := range accept {
		ok = ok || s == resp.StatusCode
	}
	if !ok {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("%s %s returned status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return resp.StatusCode, nil
}
