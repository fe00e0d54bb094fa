package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/lotas/sensiblelive/internal/applog"
	"github.com/lotas/sensiblelive/internal/config"
	"github.com/lotas/sensiblelive/internal/events"
	"github.com/lotas/sensiblelive/internal/storage"
	"github.com/lotas/sensiblelive/internal/suggest"
	"github.com/lotas/sensiblelive/internal/transport"
	"github.com/lotas/sensiblelive/internal/tui"
	"github.com/lotas/sensiblelive/internal/types"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "watch":
			runWatch(os.Args[2:])
			return
		case "search":
			runSearch(os.Args[2:])
			return
		case "history":
			runHistory(os.Args[2:])
			return
		case "help", "--help", "-h":
			printHelp()
			return
		}
	}

	fs := flag.NewFlagSet("sensiblelive", flag.ExitOnError)
	server := fs.String("server", "", "sensibleHub server URL")
	configPath := fs.String("config", "", "Config file path")
	resume := fs.Bool("resume", false, "Start at the last page visited")
	fs.Parse(os.Args[1:])

	cfg := loadConfig(*configPath, *server)
	if err := applog.Init(cfg.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}
	defer applog.Close()

	client := newClient(cfg)

	db, err := storage.OpenDB(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: journal disabled: %v\n", err)
		db = nil
	} else {
		defer db.Close()
	}

	start := fs.Arg(0)
	if start == "" && *resume && db != nil {
		if v, err := storage.LastVisit(db); err == nil && v != nil {
			start = v.URL
		}
	}
	if start == "" {
		start = "/"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := events.NewClient(client.WebSocketURL(cfg.EventsPath), streamSettings(cfg))
	model := tui.NewModel(ctx, tui.Options{
		Backend: client,
		Stream:  stream,
		DB:      db,
		Config:  cfg,
		Start:   start,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Print(`sensiblelive: live terminal client for a sensibleHub music library

Usage:
  sensiblelive [path]                       Start the TUI (default: /)
    --server <url>         Server URL (env: SENSIBLELIVE_SERVER)
    --config <file>        Config file (env: SENSIBLELIVE_CONFIG)
    --resume               Start at the last page visited

  sensiblelive watch                        Print push events until interrupted
    --server <url>         Server URL
    --json                 Print events as JSON lines
    --record               Also write events to the journal

  sensiblelive search <text>                Query the search endpoint
    --server <url>         Server URL
    --limit <n>            Maximum results (default: server decides)

  sensiblelive history                      Show recent visits and events
    --limit <n>            Number of entries (default: 20)
    --song <id>            Only events for this song

Environment:
  SENSIBLELIVE_SERVER    Server URL (overridden by --server flag)
  SENSIBLELIVE_CONFIG    Config file (default: ~/.config/sensiblelive/config.toml)
  SENSIBLELIVE_DB        Journal database path
`)
}

// loadConfig reads the config file and applies the --server flag on top.
func loadConfig(path, server string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if s := strings.TrimSpace(server); s != "" {
		cfg.Server = s
	}
	return cfg
}

func newClient(cfg config.Config) *transport.Client {
	client, err := transport.NewClient(cfg.Server, cfg.RequestTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return client
}

func streamSettings(cfg config.Config) *events.Settings {
	s := events.DefaultSettings()
	s.RetryInterval = cfg.RetryInterval
	return s
}

func openJournal(cfg config.Config) *sql.DB {
	db, err := storage.OpenDB(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening journal: %v\n", err)
		os.Exit(1)
	}
	return db
}

// reorderArgs moves flag arguments before positional arguments so that
// flag.Parse handles them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if strings.HasPrefix(args[i], "-") {
			flags = append(flags, args[i])
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") && !strings.Contains(args[i], "=") && !isBoolFlag(args[i]) {
				flags = append(flags, args[i+1])
				i++
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}

func isBoolFlag(arg string) bool {
	switch strings.TrimLeft(arg, "-") {
	case "json", "record", "resume":
		return true
	}
	return false
}

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	server := fs.String("server", "", "sensibleHub server URL")
	configPath := fs.String("config", "", "Config file path")
	asJSON := fs.Bool("json", false, "Print events as JSON lines")
	record := fs.Bool("record", false, "Write events to the journal")
	fs.Parse(reorderArgs(args))

	cfg := loadConfig(*configPath, *server)
	if err := applog.Init(cfg.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}
	defer applog.Close()
	client := newClient(cfg)

	var db *sql.DB
	if *record {
		db = openJournal(cfg)
		defer db.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := client.WebSocketURL(cfg.EventsPath)
	stream := events.NewClient(url, streamSettings(cfg))
	ch := stream.Subscribe(16)
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx) }()

	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", url)
	enc := json.NewEncoder(os.Stdout)
	for ev := range ch {
		if db != nil {
			if err := storage.RecordEvent(db, ev, time.Now()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}
		if *asJSON {
			enc.Encode(watchLine{Type: ev.Kind.String(), ID: ev.EntityID, Error: ev.Error})
			continue
		}
		fmt.Println(formatEvent(ev))
	}
	<-done
}

type watchLine struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

func formatEvent(ev types.ChangeEvent) string {
	line := fmt.Sprintf("%s  %-15s", time.Now().Format("15:04:05"), ev.Kind)
	if ev.EntityID != "" {
		line += "  " + ev.EntityID
	}
	if ev.Error != "" {
		line += "  error: " + ev.Error
	}
	return line
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	server := fs.String("server", "", "sensibleHub server URL")
	configPath := fs.String("config", "", "Config file path")
	limit := fs.Int("limit", 0, "Maximum results")
	fs.Parse(reorderArgs(args))

	query := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(os.Stderr, "Usage: sensiblelive search <text> [--limit N]")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath, *server)
	client := newClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	resp, res := suggest.LookupN(ctx, client, query, *limit)
	if !res.OK() {
		fmt.Fprintf(os.Stderr, "Error: %v\n", res.Err())
		os.Exit(1)
	}
	if len(resp.Results) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, r := range resp.Results {
		fmt.Printf("  %-40s  %s\n", r.Title, client.Resolve(types.SongPath(r.ID)))
	}
	if resp.Query != query {
		fmt.Fprintf(os.Stderr, "(server answered for %q)\n", resp.Query)
	}
}

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	limit := fs.Int("limit", 20, "Number of entries")
	song := fs.String("song", "", "Only events for this song")
	fs.Parse(reorderArgs(args))

	cfg := loadConfig(*configPath, "")
	db := openJournal(cfg)
	defer db.Close()

	if *song == "" {
		visits, err := storage.RecentVisits(db, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Visits:")
		if len(visits) == 0 {
			fmt.Println("  (none)")
		}
		for _, v := range visits {
			title := v.Title
			if title == "" {
				title = v.URL
			}
			fmt.Printf("  %-14s  %3d  %-40s  %s\n", humanize.Time(v.VisitedAt), v.Status, title, v.URL)
		}
		fmt.Println()
	}

	evs, err := storage.RecentEvents(db, *song, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Events:")
	if len(evs) == 0 {
		fmt.Println("  (none)")
	}
	for _, e := range evs {
		line := fmt.Sprintf("  %-14s  %-15s  %s", humanize.Time(e.ReceivedAt), e.Kind, e.EntityID)
		if e.Detail != "" {
			line += "  error: " + e.Detail
		}
		fmt.Println(strings.TrimRight(line, " "))
	}
}
