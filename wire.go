package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/sadopc/statusdash/internal/auth"
	"github.com/sadopc/statusdash/internal/cache"
	"github.com/sadopc/statusdash/internal/config"
	"github.com/sadopc/statusdash/internal/export"
	"github.com/sadopc/statusdash/internal/httpx"
	"github.com/sadopc/statusdash/internal/report"
	"github.com/sadopc/statusdash/internal/source"
	"github.com/sadopc/statusdash/internal/store"
	"github.com/sadopc/statusdash/internal/tui"
	"github.com/spf13/cobra"
)

// deps is everything one process run needs, built from config.
type deps struct {
	cfg      *config.Config
	store    *store.Store
	gate     *auth.Gate
	dash     *report.Dashboard
	grouping source.Grouping
}

func (r *deps) Close() error {
	return r.store.Close()
}

// resolveDBPath picks the sqlite file: --db wins, then --persist, then the
// configured path. An empty result means an in-memory store.
func resolveDBPath(flags globalFlags, configured string) (string, error) {
	switch {
	case flags.dbPath != "":
		return flags.dbPath, nil
	case flags.persist:
		path, err := store.DefaultDBPath()
		if err != nil {
			return "", fmt.Errorf("resolve default db path: %w", err)
		}
		return path, nil
	}
	return configured, nil
}

func setup(flags globalFlags) (*deps, error) {
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DBPath, err = resolveDBPath(flags, cfg.DBPath); err != nil {
		return nil, err
	}

	var (
		s        *store.Store
		cacheOpt []cache.Option
	)
	if cfg.DBPath != "" {
		if s, err = store.New(cfg.DBPath); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		cacheOpt = append(cacheOpt, cache.WithBackend(s))
		log.Printf("[statusdash] persistent store at %s", cfg.DBPath)
	} else {
		// Settings still need a home; nothing outlives the process.
		if s, err = store.NewMemory(); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		if err := s.SetCacheTTL(cfg.CacheTTL); err != nil {
			s.Close()
			return nil, fmt.Errorf("seed settings: %w", err)
		}
	}

	client := httpx.NewClient(httpx.ClientOptions{Timeout: cfg.HTTPTimeout})

	gate := auth.NewGate(auth.Config{
		ClientID:     cfg.Discord.ClientID,
		ClientSecret: cfg.Discord.ClientSecret,
		RedirectURI:  cfg.Discord.RedirectURI,
		AuthURL:      cfg.Discord.AuthURL,
		TokenURL:     cfg.Discord.TokenURL,
		APIURL:       cfg.Discord.APIURL,
		Allowlist:    cfg.Allowlist,
		HTTPClient:   client,
	})

	journal := source.NewJournalClient(source.JournalConfig{
		BaseURL: cfg.Airtable.BaseURL,
		APIKey:  cfg.Airtable.APIKey,
		BaseID:  cfg.Airtable.BaseID,
		Table:   cfg.Airtable.Table,
		View:    cfg.Airtable.View,
	}, client)
	sleep := source.NewSleepClient(source.SleepConfig{BaseURL: cfg.Oura.BaseURL, APIKey: cfg.Oura.APIKey}, client)
	timeTrack := source.NewTimeClient(source.TimeConfig{BaseURL: cfg.Toggl.BaseURL, APIKey: cfg.Toggl.APIKey}, client)

	dash := report.NewDashboard(cache.New(cacheOpt...), journal, sleep, timeTrack, report.Options{
		TTL:  s.CacheTTL(cfg.CacheTTL),
		Gate: gate,
	})

	grouping := source.GroupProjects
	if v, err := s.GetSetting(store.SettingGrouping); err == nil {
		if g, err := source.ParseGrouping(v); err == nil {
			grouping = g
		}
	}

	return &deps{cfg: cfg, store: s, gate: gate, dash: dash, grouping: grouping}, nil
}

func runTUI(cmd *cobra.Command, flags globalFlags) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return errors.New("stdout is not a terminal; use `statusdash export` for headless output")
	}

	rt, err := setup(flags)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Logs must not reach the alt screen.
	if rt.cfg.LogFile != "" {
		f, err := tea.LogToFile(rt.cfg.LogFile, "")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	cb, err := auth.NewCallbackServer(rt.gate, rt.cfg.Discord.RedirectURI)
	if err != nil {
		return err
	}
	cb.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		cb.Close(ctx)
	}()

	app := tui.NewApp(tui.Options{
		Dashboard:   rt.dash,
		Gate:        rt.gate,
		AuthResults: cb.Results(),
		Store:       rt.store,
		Grouping:    rt.grouping,
	})
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	_, err = p.Run()
	return err
}

func newExportCmd(flags *globalFlags) *cobra.Command {
	var (
		dateStr      string
		format       string
		out          string
		grouping     string
		loginTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Log in, load one day and write it as CSV or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("invalid --format %q: want csv or json", format)
			}
			date := source.Date(time.Now())
			if dateStr != "" {
				d, err := source.ParseDate(dateStr)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
				date = d
			}

			rt, err := setup(*flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			g := rt.grouping
			if grouping != "" {
				if g, err = source.ParseGrouping(grouping); err != nil {
					return fmt.Errorf("invalid --grouping: %w", err)
				}
			}

			if out == "" {
				if out, err = export.DefaultPath(date, format); err != nil {
					return err
				}
			}

			if err := login(cmd.Context(), cmd.ErrOrStderr(), rt, loginTimeout); err != nil {
				return err
			}

			snap := rt.dash.Load(cmd.Context(), date, g)
			if err := export.Write(snap, format, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", source.FormatDate(date), out)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&dateStr, "date", "", "day to export as YYYY-MM-DD (default: today)")
	f.StringVar(&format, "format", "csv", "export format: csv or json")
	f.StringVar(&out, "out", "", "output path (default: ~/statusdash-DATE.FORMAT)")
	f.StringVar(&grouping, "grouping", "", "projects or clients (default: saved setting)")
	f.DurationVar(&loginTimeout, "login-timeout", 5*time.Minute, "how long to wait for the browser login")
	return cmd
}

// login prints the authorize URL and blocks until the callback authenticates
// the gate.
func login(ctx context.Context, w io.Writer, rt *deps, timeout time.Duration) error {
	cb, err := auth.NewCallbackServer(rt.gate, rt.cfg.Discord.RedirectURI)
	if err != nil {
		return err
	}
	cb.Start()
	defer func() {
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		cb.Close(shutdown)
	}()

	fmt.Fprintf(w, "Open this link to log in:\n\n  %s\n\n", rt.gate.LoginURL())

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	id, err := cb.Wait(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrDenied) {
			return fmt.Errorf("account %s is not allowed", id.ID)
		}
		return fmt.Errorf("login: %w", err)
	}
	fmt.Fprintf(w, "logged in as %s\n", id.Username)
	return nil
}
