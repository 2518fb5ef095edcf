// Package relay moves a short value between two peers through an HTTP
// pastebin before they have any direct channel.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// maxValueSize caps what Retrieve reads; session ids are short.
const maxValueSize = 64 << 10

type Client struct {
	http   *http.Client
	logger *logrus.Logger
}

// NewClient uses http.DefaultClient when hc is nil. No timeout is added;
// bound calls with the context.
func NewClient(hc *http.Client, logger *logrus.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{http: hc, logger: logger}
}

// Publish posts value under key. Any 2xx is success.
func (c *Client) Publish(ctx context.Context, endpointBase, key, value string) error {
	target, err := keyURL(endpointBase, key)
	if err != nil {
		return &Error{Op: "publish", URL: endpointBase, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(value))
	if err != nil {
		return &Error{Op: "publish", URL: target, Err: err}
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: "publish", URL: target, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxValueSize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: "publish", URL: target, StatusCode: resp.StatusCode}
	}

	c.logger.Debugf("Published key %s to %s", key, endpointBase)
	return nil
}

// Retrieve reads the value under key and returns the body unchanged. A 2xx
// with an empty body is treated as a failure since there is nothing to
// connect to.
func (c *Client) Retrieve(ctx context.Context, endpointBase, key string) (string, error) {
	target, err := keyURL(endpointBase, key)
	if err != nil {
		return "", &Error{Op: "retrieve", URL: endpointBase, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &Error{Op: "retrieve", URL: target, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Op: "retrieve", URL: target, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Op: "retrieve", URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxValueSize))
	if err != nil {
		return "", &Error{Op: "retrieve", URL: target, Err: err}
	}

	value := string(body)
	if value == "" {
		return "", &Error{Op: "retrieve", URL: target, Err: errors.New("empty value")}
	}

	c.logger.Debugf("Retrieved key %s from %s", key, endpointBase)
	return value, nil
}

// keyURL joins base and key, adding the separating slash when base lacks it.
func keyURL(endpointBase, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("empty key")
	}
	if endpointBase == "" {
		return "", errors.New("empty endpoint")
	}

	u, err := url.Parse(endpointBase)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("endpoint has no host")
	}

	if !strings.HasSuffix(endpointBase, "/") {
		endpointBase += "/"
	}
	return endpointBase + url.PathEscape(key), nil
}
