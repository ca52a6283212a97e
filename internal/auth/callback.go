package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Result is one completed callback.
type Result struct {
	Identity Identity
	Err      error
}

// CallbackServer receives the provider's redirect on the local machine and
// hands the code to the gate.
type CallbackServer struct {
	gate    *Gate
	path    string
	srv     *http.Server
	ln      net.Listener
	results chan Result
}

// NewCallbackServer listens on the host and port of redirectURI. Serving
// starts with Start.
func NewCallbackServer(g *Gate, redirectURI string) (*CallbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("parse redirect uri: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("redirect uri %q has no host", redirectURI)
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "80")
	}
	ln, err := net.Listen("tcp", host)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", host, err)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	cs := &CallbackServer{
		gate:    g,
		path:    path,
		ln:      ln,
		results: make(chan Result, 4),
	}
	cs.srv = &http.Server{Handler: cs.Handler(), ReadHeaderTimeout: 10 * time.Second}
	return cs, nil
}

func (cs *CallbackServer) Addr() string { return cs.ln.Addr().String() }

// Results delivers every callback outcome. Outcomes are dropped when nobody
// is reading and the buffer is full.
func (cs *CallbackServer) Results() <-chan Result { return cs.results }

func (cs *CallbackServer) Start() {
	go func() {
		if err := cs.srv.Serve(cs.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[statusdash] callback server: %v", err)
		}
	}()
}

func (cs *CallbackServer) Close(ctx context.Context) error {
	return cs.srv.Shutdown(ctx)
}

// Handler serves the redirect path. It is exposed for tests.
func (cs *CallbackServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(cs.path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			cs.deliver(Result{Err: fmt.Errorf("provider error: %s", e)})
			writePage(w, http.StatusBadRequest, "Login was cancelled. You can close this tab.")
			return
		}

		id, err := cs.gate.Complete(r.Context(), q.Get("code"), q.Get("state"))
		cs.deliver(Result{Identity: id, Err: err})
		switch {
		case err == nil:
			writePage(w, http.StatusOK, "Logged in as "+id.Username+". You can return to the terminal.")
		case errors.Is(err, ErrDenied):
			writePage(w, http.StatusForbidden, "This account is not allowed. You can close this tab.")
		case errors.Is(err, ErrStateMismatch):
			writePage(w, http.StatusBadRequest, "This login link has expired. Start again from the terminal.")
		default:
			writePage(w, http.StatusBadGateway, "Login failed. Check the terminal for details.")
		}
	})
	return mux
}

func (cs *CallbackServer) deliver(r Result) {
	select {
	case cs.results <- r:
	default:
	}
}

// Wait blocks until a callback authenticates or denies the identity, or ctx
// ends. Other failed callbacks are logged and waiting continues.
func (cs *CallbackServer) Wait(ctx context.Context) (Identity, error) {
	for {
		select {
		case <-ctx.Done():
			return Identity{}, ctx.Err()
		case r := <-cs.results:
			if r.Err == nil {
				return r.Identity, nil
			}
			if errors.Is(r.Err, ErrDenied) {
				return r.Identity, r.Err
			}
			log.Printf("[statusdash] callback: %v", r.Err)
		}
	}
}

func writePage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<!doctype html><title>statusdash</title><p>%s</p>\n", html.EscapeString(msg))
}
