package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// HTTPPublisher posts events to a relay's publish endpoint.
type HTTPPublisher struct {
	base   *url.URL
	client *http.Client
}

func NewHTTPPublisher(baseURL string, client *http.Client) (*HTTPPublisher, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, errors.Wrapf(err, "parse relay url %q", baseURL)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, errors.Errorf("unsupported relay url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/ws"), "/")
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPublisher{base: u, client: client}, nil
}

func (p *HTTPPublisher) Publish(ctx context.Context, key, event string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal event payload")
	}
	endpoint := p.base.JoinPath("api", "channels", key, "events", event)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build publish request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "publish %s/%s", key, event)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return errors.Errorf("publish %s/%s: %s: %s", key, event, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
