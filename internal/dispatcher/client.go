// Package dispatcher is the HTTP client for the dispatcher REST service.
package dispatcher

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"dispatch-watch/internal/models"
)

// maxBody caps how much of a dispatcher response is read.
const maxBody = 32 << 20

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	InsecureTLS bool
}

// Client talks to {BaseURL}/info and {BaseURL}/action.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(cfg Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // dispatcher runs on a self-signed certificate
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}
}

// FetchTasks lists the tasks currently known to the dispatcher for site.
func (c *Client) FetchTasks(ctx context.Context, site string) ([]models.RawTask, error) {
	u := fmt.Sprintf("%s/info?site=%s", c.baseURL, url.QueryEscape(site))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", models.ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", models.ErrSourceUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: dispatcher returned status %d", models.ErrSourceUnavailable, resp.StatusCode)
	}

	var tasks []models.RawTask
	if err := json.Unmarshal(body, &tasks); err != nil {
		return nil, fmt.Errorf("%w: decode task list: %w", models.ErrSourceUnavailable, err)
	}
	return tasks, nil
}

// SubmitAction posts {uids, action, site} to the dispatcher. A non-2xx reply
// is returned as a *models.SinkError alongside the result.
func (c *Client) SubmitAction(ctx context.Context, site string, kind models.ActionKind, ids []string) (models.ActionResult, error) {
	payload, err := json.Marshal(models.ActionRequest{UIDs: ids, Action: kind, Site: site})
	if err != nil {
		return models.ActionResult{}, &models.SinkError{Action: kind, IDs: ids, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/action", bytes.NewReader(payload))
	if err != nil {
		return models.ActionResult{}, &models.SinkError{Action: kind, IDs: ids, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.ActionResult{}, &models.SinkError{Action: kind, IDs: ids, Err: err}
	}
	defer resp.Body.Close()

	res := models.ActionResult{Status: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return res, &models.SinkError{Action: kind, Status: resp.StatusCode, IDs: ids, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return res, &models.SinkError{Action: kind, Status: resp.StatusCode, IDs: ids}
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if json.Valid(body) {
			res.Body = body
		} else {
			quoted, _ := json.Marshal(string(body))
			res.Body = quoted
		}
	}
	return res, nil
}
