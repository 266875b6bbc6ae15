// Caleb is a WhatsApp sales assistant for a tour operator.
//
// It receives customer messages through a Twilio WhatsApp webhook, runs
// them through an LLM agent loop with booking tools (catalog lookup,
// reservations, PIX and boleto charges), and confirms paid bookings via
// an Asaas payment webhook that delivers the voucher. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	caleb serve              Start the webhook server
//	caleb seed <file.yaml>   Load the tour catalog and knowledge base
//	caleb version            Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/calebstour/caleb-sales-agent/examples"
	"github.com/calebstour/caleb-sales-agent/internal/agent"
	"github.com/calebstour/caleb-sales-agent/internal/buildinfo"
	"github.com/calebstour/caleb-sales-agent/internal/config"
	"github.com/calebstour/caleb-sales-agent/internal/console"
	"github.com/calebstour/caleb-sales-agent/internal/convstore"
	"github.com/calebstour/caleb-sales-agent/internal/events"
	"github.com/calebstour/caleb-sales-agent/internal/llm"
	"github.com/calebstour/caleb-sales-agent/internal/mqtt"
	"github.com/calebstour/caleb-sales-agent/internal/payment"
	"github.com/calebstour/caleb-sales-agent/internal/store"
	"github.com/calebstour/caleb-sales-agent/internal/tools"
	"github.com/calebstour/caleb-sales-agent/internal/twilio"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main constructs the OS-level environment and delegates to [run] so
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible to
// call run() concurrently from tests, and the surface here is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "seed":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: caleb seed <file.yaml>")
		}
		return runSeed(stdout, configPath, cmdArgs[0])
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %q (try caleb -help)", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, `caleb - WhatsApp sales assistant for tour bookings

Usage:
  caleb serve              Start the webhook server
  caleb init [dir]         Write example config and seed files
  caleb seed <file.yaml>   Load the tour catalog and knowledge base
  caleb version            Print version and build information

Flags:
  -config <path>           Config file (default: search standard paths)`)
	return nil
}

// runInit writes the example config and catalog seed into dir, refusing
// to overwrite files that already exist.
func runInit(stdout io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	files := map[string][]byte{
		"config.yaml": examples.ConfigYAML,
		"seed.yaml":   examples.SeedYAML,
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(stdout, "skipping %s (already exists)\n", path)
			continue
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(stdout, "wrote %s\n", path)
	}

	fmt.Fprintln(stdout, "\nNext steps:")
	fmt.Fprintln(stdout, "  1. Edit config.yaml (or export the referenced env vars)")
	fmt.Fprintln(stdout, "  2. caleb seed seed.yaml")
	fmt.Fprintln(stdout, "  3. caleb serve")
	return nil
}

func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting caleb", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure at the configured level; the Info-level logger above
	// only covers the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Groq.Model,
		"db", cfg.DBPath,
	)

	// --- Booking store ---
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open booking database %s: %w", cfg.DBPath, err)
	}
	defer st.Close()
	logger.Info("booking database opened", "path", cfg.DBPath)

	// --- Conversation store ---
	// Redis when configured, otherwise a process-local fallback that
	// loses state on restart.
	var convs convstore.Store
	if cfg.Redis.Addr != "" {
		ttl := time.Duration(cfg.Redis.TTLHours) * time.Hour
		rs, err := convstore.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, ttl, logger)
		if err != nil {
			return fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		defer rs.Close()
		convs = rs
		logger.Info("conversation store: redis", "addr", cfg.Redis.Addr, "ttl_hours", cfg.Redis.TTLHours)
	} else {
		convs = convstore.NewMemory()
		logger.Warn("conversation store: in-memory (state is lost on restart)")
	}

	// --- Event bus ---
	bus := events.New()

	// --- Collaborator clients ---
	llmClient := llm.NewGroqClient(cfg.Groq.BaseURL, cfg.Groq.APIKey, cfg.Groq.Model, logger)
	payClient := payment.New(cfg.Asaas.BaseURL, cfg.Asaas.APIKey, logger)

	// --- Tool executor and agent loop ---
	exec := tools.NewExecutor(st, payClient, logger)
	exec.SetEventBus(bus)

	ag := agent.New(llmClient, exec, convs, st, logger)
	ag.SetEventBus(bus)

	// --- Transport ---
	sender := twilio.NewClient(cfg.Twilio, logger)
	server := twilio.NewServer(cfg, ag, sender, st, logger)
	server.SetEventBus(bus)

	if cfg.Console.Enabled {
		server.Mount("GET /console/events", console.NewHandler(bus, logger))
		logger.Info("operator console enabled", "path", "/console/events")
	}

	// --- Signal handling ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- MQTT event mirror ---
	var mqttPub *mqtt.Publisher
	if cfg.MQTT.Enabled && cfg.MQTT.Broker != "" {
		mqttPub = mqtt.New(cfg.MQTT, bus, logger)
		go func() {
			if err := mqttPub.Start(ctx); err != nil {
				logger.Error("mqtt publisher failed", "error", err)
			}
		}()
		logger.Info("mqtt event mirror enabled", "broker", cfg.MQTT.Broker, "device_name", cfg.MQTT.DeviceName)
	} else {
		logger.Info("mqtt publishing disabled (not configured)")
	}

	// --- Graceful shutdown ---
	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		if mqttPub != nil {
			offlineCtx, offlineCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer offlineCancel()
			if err := mqttPub.Stop(offlineCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("caleb stopped")
	return nil
}

// seedFile is the YAML document consumed by the seed command: the tour
// catalog plus free-text knowledge chunks for consultar_conhecimento.
type seedFile struct {
	Passeios []struct {
		ID        string   `yaml:"id"`
		Nome      string   `yaml:"nome"`
		Categoria string   `yaml:"categoria"`
		Descricao string   `yaml:"descricao"`
		Local     string   `yaml:"local"`
		Duracao   string   `yaml:"duracao"`
		PrecoMin  *float64 `yaml:"preco_min"`
		PrecoMax  *float64 `yaml:"preco_max"`
		Includes  string   `yaml:"includes"`
		Horarios  string   `yaml:"horarios"`
	} `yaml:"passeios"`
	Conhecimento []struct {
		Slug    string   `yaml:"slug"`
		Title   string   `yaml:"title"`
		Content string   `yaml:"content"`
		Source  string   `yaml:"source"`
		Tags    []string `yaml:"tags"`
	} `yaml:"conhecimento"`
}

func runSeed(stdout io.Writer, configPath, seedPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file %s: %w", seedPath, err)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open booking database %s: %w", cfg.DBPath, err)
	}
	defer st.Close()

	for _, p := range seed.Passeios {
		passeio := store.Passeio{
			ID:        p.ID,
			Nome:      p.Nome,
			Categoria: p.Categoria,
			Descricao: p.Descricao,
			Local:     p.Local,
			Duracao:   p.Duracao,
			PrecoMin:  p.PrecoMin,
			PrecoMax:  p.PrecoMax,
			Includes:  p.Includes,
			Horarios:  p.Horarios,
		}
		if err := st.CreatePasseio(&passeio); err != nil {
			return fmt.Errorf("passeio %q: %w", p.Nome, err)
		}
	}
	for _, k := range seed.Conhecimento {
		chunk := store.KnowledgeChunk{
			Slug:    k.Slug,
			Title:   k.Title,
			Content: k.Content,
			Source:  k.Source,
			Tags:    k.Tags,
		}
		if err := st.AddKnowledgeChunk(&chunk); err != nil {
			return fmt.Errorf("knowledge chunk %q: %w", k.Slug, err)
		}
	}

	logger.Info("seed complete",
		"db", cfg.DBPath,
		"passeios", len(seed.Passeios),
		"knowledge_chunks", len(seed.Conhecimento),
	)
	return nil
}

// loadConfig locates and parses the YAML configuration. With no
// explicit path and no file on the search paths, built-in defaults are
// used so a dev instance can start with environment-free settings.
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "(defaults)", nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}

// newLogger standardizes the slog handler used by all subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}
