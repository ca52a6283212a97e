package httpx

import (
	"net/http"
	"time"
)

const DefaultTimeout = 15 * time.Second

type ClientOptions struct {
	// Timeout bounds every request, including reading the body.
	// Zero means DefaultTimeout.
	Timeout time.Duration

	// Transport allows providing a pre-configured transport.
	// When nil, it clones http.DefaultTransport.
	Transport *http.Transport
}

// NewClient returns an *http.Client with a bounded timeout, so no upstream call
// can hang a render.
func NewClient(opts ClientOptions) *http.Client {
	var transport *http.Transport
	if opts.Transport != nil {
		transport = opts.Transport.Clone()
	} else {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
