// Package download pulls a remote peer's file to local disk over HTTP.
package download

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// DefaultTimeout bounds a fetch when the caller does not configure one.
// Unlike the beacon path there is a caller waiting on this operation, so it
// must not hang forever on a dead peer.
const DefaultTimeout = 30 * time.Second

// StatusError reports a non-2xx response from the remote peer.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %s: unexpected status %s", e.URL, e.Status)
}

// Client is a one-shot HTTP downloader.
type Client struct {
	http *http.Client
}

// NewClient creates a downloader with the given timeout; zero or negative
// falls back to DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
	}
}

// Fetch downloads url and writes the full body to destPath. Any failure —
// network error, non-2xx status, filesystem error — is returned to the
// caller; nothing is swallowed.
func (c *Client) Fetch(url, destPath string) error {
	resp, err := c.http.Get(url)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: url, Code: resp.StatusCode, Status: resp.Status}
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(destPath)
		return fmt.Errorf("writing %s: %w", destPath, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", destPath, err)
	}
	return nil
}
