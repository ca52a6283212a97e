package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

var (
	// ErrDenied means the identity is valid but not on the allowlist.
	ErrDenied = errors.New("access denied")
	// ErrStateMismatch means the callback did not carry the state issued by
	// the last LoginURL.
	ErrStateMismatch = errors.New("oauth state mismatch")
)

type State int

const (
	Anonymous State = iota
	TokenExchanged
	Authenticated
	Denied
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case TokenExchanged:
		return "token exchanged"
	case Authenticated:
		return "authenticated"
	case Denied:
		return "denied"
	}
	return "unknown"
}

// Identity is the user returned by the provider's /users/@me endpoint.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	APIURL       string
	Allowlist    []string
	// HTTPClient is used for the token exchange and the identity lookup.
	HTTPClient *http.Client
}

// Gate tracks a single user's login. It is safe for concurrent use.
type Gate struct {
	oauth     *oauth2.Config
	apiURL    string
	allowlist map[string]bool
	client    *http.Client

	mu       sync.RWMutex
	state    State
	pending  string
	token    *oauth2.Token
	identity Identity
}

func NewGate(cfg Config) *Gate {
	allow := make(map[string]bool, len(cfg.Allowlist))
	for _, id := range cfg.Allowlist {
		if id = strings.TrimSpace(id); id != "" {
			allow[id] = true
		}
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Gate{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL:    strings.TrimRight(cfg.APIURL, "/"),
		allowlist: allow,
		client:    client,
	}
}

// LoginURL returns the provider's authorize URL with a fresh state. Any
// previously issued state stops being accepted.
func (g *Gate) LoginURL() string {
	st := uuid.NewString()
	g.mu.Lock()
	g.pending = st
	g.mu.Unlock()
	return g.oauth.AuthCodeURL(st)
}

// Complete finishes the authorization-code flow. On success the gate is
// Authenticated. An identity outside the allowlist leaves it Denied and
// returns ErrDenied.
func (g *Gate) Complete(ctx context.Context, code, state string) (Identity, error) {
	g.mu.Lock()
	if g.pending == "" || state != g.pending {
		g.mu.Unlock()
		return Identity{}, ErrStateMismatch
	}
	g.pending = ""
	g.mu.Unlock()

	if code == "" {
		return Identity{}, errors.New("missing authorization code")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchange code: %w", err)
	}
	g.setState(TokenExchanged, tok, Identity{})

	id, err := g.fetchIdentity(ctx, tok)
	if err != nil {
		g.setState(Anonymous, nil, Identity{})
		return Identity{}, err
	}

	if !g.allowlist[id.ID] {
		log.Printf("[statusdash] auth: identity %s not on allowlist", id.ID)
		g.setState(Denied, nil, id)
		return id, ErrDenied
	}
	log.Printf("[statusdash] auth: %s authenticated", id.ID)
	g.setState(Authenticated, tok, id)
	return id, nil
}

func (g *Gate) fetchIdentity(ctx context.Context, tok *oauth2.Token) (Identity, error) {
	client := g.oauth.Client(ctx, tok)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL+"/users/@me", nil)
	if err != nil {
		return Identity{}, fmt.Errorf("identity request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Identity{}, fmt.Errorf("identity request: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	if id.ID == "" {
		return Identity{}, errors.New("identity response missing id")
	}
	return id, nil
}

func (g *Gate) setState(s State, tok *oauth2.Token, id Identity) {
	g.mu.Lock()
	g.state = s
	g.token = tok
	g.identity = id
	g.mu.Unlock()
}

// Authorized reports whether the data pipeline may run.
func (g *Gate) Authorized() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == Authenticated
}

func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Identity returns the last identity seen, including a denied one.
func (g *Gate) Identity() Identity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.identity
}

// Logout discards the token and identity.
func (g *Gate) Logout() {
	g.mu.Lock()
	g.state = Anonymous
	g.token = nil
	g.identity = Identity{}
	g.pending = ""
	g.mu.Unlock()
}
