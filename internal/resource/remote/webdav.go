package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout of the default HTTP client.
	httpClientTimeout = 60 * time.Second

	// maxFileBytes caps downloads so a misbehaving server cannot consume
	// unbounded memory.
	maxFileBytes = 64 * 1024 * 1024
)

// WebDAV stores files below a collection URL using plain GET, PUT and
// DELETE requests with basic auth.
type WebDAV struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so credentials never leak to another
// domain.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewWebDAV returns a store for the collection at rawURL. A nil httpClient
// uses a client with a timeout and the same-host redirect policy.
func NewWebDAV(rawURL, username, password string, httpClient *http.Client) (*WebDAV, error) {
	base, err := normalizeBaseURL(rawURL)
	if err != nil {
		return nil, err
	}

	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &WebDAV{
		httpClient: httpClient,
		baseURL:    base,
		username:   username,
		password:   password,
	}, nil
}

// normalizeBaseURL drops query and fragment and guarantees a trailing
// slash.
func normalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing server url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("server url must be http or https, got %q", raw)
	}

	u.RawQuery = ""
	u.Fragment = ""

	out := u.String()
	if !strings.HasSuffix(out, "/") {
		out += "/"
	}

	return out, nil
}

func (w *WebDAV) fileURL(name string) string {
	return w.baseURL + strings.TrimPrefix(name, "/")
}

func (w *WebDAV) do(ctx context.Context, method, name string, body []byte, contentType string) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, w.fileURL(name), rd)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if w.username != "" || w.password != "" {
		req.SetBasicAuth(w.username, w.password)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if method == http.MethodGet {
		req.Header.Set("Cache-Control", "no-store")
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", apperrors.ErrRemoteRequest, method, name, err)
	}

	return resp, nil
}

// statusError maps an unexpected response to an error. 401 and 403 are
// authentication problems, everything else is reported with the status
// and a sanitized excerpt of the body.
func statusError(method, name string, resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s %s returned %d", apperrors.ErrAuthentication, method, name, resp.StatusCode)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))

	return fmt.Errorf("%w: %s %s returned %d: %s", apperrors.ErrRemoteResponse, method, name, resp.StatusCode, sanitizeResponseBody(body))
}

func (w *WebDAV) Get(ctx context.Context, name string) ([]byte, time.Time, error) {
	resp, err := w.do(ctx, http.MethodGet, name, nil, "")
	if err != nil {
		return nil, time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, time.Time{}, errNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, time.Time{}, statusError(http.MethodGet, name, resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBytes))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: reading %s: %w", apperrors.ErrRemoteRequest, name, err)
	}

	var modified time.Time
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		modified, _ = http.ParseTime(lm)
	}

	return data, modified, nil
}

func (w *WebDAV) Put(ctx context.Context, name string, data []byte, contentType string) error {
	resp, err := w.do(ctx, http.MethodPut, name, data, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusLocked || resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: PUT %s returned %d", apperrors.ErrLockFile, name, resp.StatusCode)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return statusError(http.MethodPut, name, resp)
	}

	return nil
}

func (w *WebDAV) Delete(ctx context.Context, name string) error {
	resp, err := w.do(ctx, http.MethodDelete, name, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}

	return statusError(http.MethodDelete, name, resp)
}

func (w *WebDAV) Location() string {
	return w.baseURL
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages, replacing non-printable characters to
// prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}
