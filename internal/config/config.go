package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAirtableBaseURL = "https://api.airtable.com"
	DefaultAirtableTable   = "Daily"
	DefaultAirtableView    = "Grid view"
	DefaultOuraBaseURL     = "https://api.ouraring.com"
	DefaultTogglBaseURL    = "https://api.track.toggl.com"

	DefaultDiscordAuthURL  = "https://discord.com/api/oauth2/authorize"
	DefaultDiscordTokenURL = "https://discord.com/api/oauth2/token"
	DefaultDiscordAPIURL   = "https://discord.com/api"

	DefaultHTTPTimeout = 15 * time.Second
	DefaultCacheTTL    = time.Hour
)

// Config holds everything the process needs, read once at startup and passed
// down explicitly.
type Config struct {
	Airtable Airtable
	Oura     Oura
	Toggl    Toggl
	Discord  Discord

	// Allowlist holds the external identity ids allowed to see the dashboard.
	Allowlist []string

	HTTPTimeout time.Duration
	CacheTTL    time.Duration

	// DBPath enables the persistent cache and settings store when non-empty.
	DBPath  string
	LogFile string
}

type Airtable struct {
	APIKey  string
	BaseID  string
	Table   string
	View    string
	BaseURL string
}

type Oura struct {
	APIKey  string
	BaseURL string
}

type Toggl struct {
	APIKey  string
	BaseURL string
}

type Discord struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	APIURL       string
}

// LoadDotEnv loads .env.local and .env from the working directory plus any
// extra paths. Variables already set in the environment win. Missing files
// are skipped.
func LoadDotEnv(extra ...string) error {
	paths := append([]string{".env.local", ".env"}, extra...)
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
		log.Printf("[statusdash] loaded env from %s", p)
	}
	return nil
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config using lookup for every variable. All missing
// required keys are reported together.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	var missing []error
	get := func(key, fallback string) string {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			return fallback
		}
		return v
	}
	require := func(key string) string {
		v := get(key, "")
		if v == "" {
			missing = append(missing, fmt.Errorf("missing required env %s", key))
		}
		return v
	}

	cfg := &Config{
		Airtable: Airtable{
			APIKey:  require("AIRTABLE_API_KEY"),
			BaseID:  require("AIRTABLE_BASE_ID"),
			Table:   get("AIRTABLE_TABLE", DefaultAirtableTable),
			View:    get("AIRTABLE_VIEW", DefaultAirtableView),
			BaseURL: get("AIRTABLE_BASE_URL", DefaultAirtableBaseURL),
		},
		Oura: Oura{
			APIKey:  require("OURA_API_KEY"),
			BaseURL: get("OURA_BASE_URL", DefaultOuraBaseURL),
		},
		Toggl: Toggl{
			APIKey:  require("TOGGL_API_KEY"),
			BaseURL: get("TOGGL_BASE_URL", DefaultTogglBaseURL),
		},
		Discord: Discord{
			ClientID:     require("DISCORD_CLIENT_ID"),
			ClientSecret: require("DISCORD_CLIENT_SECRET"),
			RedirectURI:  require("DISCORD_REDIRECT_URI"),
			AuthURL:      get("DISCORD_AUTH_URL", DefaultDiscordAuthURL),
			TokenURL:     get("DISCORD_TOKEN_URL", DefaultDiscordTokenURL),
			APIURL:       get("DISCORD_API_URL", DefaultDiscordAPIURL),
		},
		Allowlist: ParseList(get("STATUSDASH_ALLOWLIST", "")),
		DBPath:    get("STATUSDASH_DB", ""),
		LogFile:   get("STATUSDASH_LOG_FILE", ""),
	}
	if len(cfg.Allowlist) == 0 {
		missing = append(missing, errors.New("missing required env STATUSDASH_ALLOWLIST"))
	}

	var err error
	if cfg.HTTPTimeout, err = parseDuration(get("STATUSDASH_HTTP_TIMEOUT", ""), DefaultHTTPTimeout); err != nil {
		missing = append(missing, fmt.Errorf("STATUSDASH_HTTP_TIMEOUT: %w", err))
	}
	if cfg.CacheTTL, err = parseDuration(get("STATUSDASH_CACHE_TTL", ""), DefaultCacheTTL); err != nil {
		missing = append(missing, fmt.Errorf("STATUSDASH_CACHE_TTL: %w", err))
	}

	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}
	return cfg, nil
}

// ParseList splits a comma separated list, dropping blanks.
func ParseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", raw)
	}
	return d, nil
}
