package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 4 * 1024

// FetchError reports a failed upstream call. StatusCode is zero when the
// request never produced a response (network error, timeout).
type FetchError struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "fetch error"
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: request failed: %v", e.Service, e.Err)
	}
	msg := fmt.Sprintf("%s: status=%d", e.Service, e.StatusCode)
	if e.Body != "" {
		msg += " body=" + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or client timeout.
func (e *FetchError) Timeout() bool {
	if e == nil || e.Err == nil {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// do sends req and decodes a 2xx JSON body into out. Anything outside 2xx is
// a *FetchError; nothing is defaulted to empty.
func do(client *http.Client, service string, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return &FetchError{Service: service, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &FetchError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Service: service, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func joinURL(base string, path string) string {
	return strings.TrimRight(base, "/") + path
}
