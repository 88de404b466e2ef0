// Voicewizard is the phone assistant for a solar installation business.
//
// It answers incoming calls with configurable AI agents, keeps the
// craftsman's tasks and appointments, and exposes everything over an
// HTTP API with a live WebSocket stream. Configuration is loaded from a
// single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	voicewizard serve                      Start the API server
//	voicewizard init [dir]                 Write an example config
//	voicewizard simulate <number>          Ring the phone and follow the call
//	voicewizard ask <question>             Ask the AI assistant a single question
//	voicewizard contacts import <file.vcf> Import contacts from a vCard file
//	voicewizard contacts export            Write every contact as vCard
//	voicewizard contacts sync              Pull contacts from CardDAV
//	voicewizard version                    Print version and build information
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/examples"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/api"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/buildinfo"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/config"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/events"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/llm"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/mqtt"
)

// defaultSimulateFor is how long simulate follows a call before hanging up.
const defaultSimulateFor = 30 * time.Second

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand so that
// tests can call run concurrently without the flag package's globals.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
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
	case "simulate":
		return runSimulate(ctx, stdout, stderr, configPath, outputFmt, cmdArgs)
	case "ask":
		return runAsk(ctx, stdout, stderr, configPath, outputFmt, cmdArgs)
	case "contacts":
		return runContacts(ctx, stdout, stderr, configPath, outputFmt, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		return writeJSON(w, info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Voice Wizard - AI phone assistant for craftsmen")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: voicewizard [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                         Start the API server")
	fmt.Fprintln(w, "  init [dir]                    Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  simulate <number> [-for dur] [-agent id]")
	fmt.Fprintln(w, "                                Ring the phone and print the call as it happens")
	fmt.Fprintln(w, "  ask [-provider name] <text>   Ask the AI assistant a single question")
	fmt.Fprintln(w, "  contacts import <file> [cat]  Import contacts from a vCard file")
	fmt.Fprintln(w, "  contacts export               Write every contact as vCard to stdout")
	fmt.Fprintln(w, "  contacts sync                 Pull contacts from the CardDAV address book")
	fmt.Fprintln(w, "  version                       Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/voicewizard/config.yaml, /etc/voicewizard/config.yaml")
	return nil
}

// runServe starts every component and the API server, then blocks
// until SIGINT or SIGTERM. On shutdown MQTT is marked offline before
// the HTTP server drains.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := config.NewLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Voice Wizard", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger = configuredLogger(stdout, cfg)
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"data_dir", cfg.DataDir,
		"storage_driver", cfg.StorageDriver,
		"providers", len(cfg.Providers),
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	deps := api.Deps{
		Calls:           a.calls,
		CallState:       a.store,
		Settings:        a.settings,
		Agents:          a.agents,
		Contacts:        a.contacts,
		Tasks:           a.tasks,
		Appointments:    a.appointments,
		Catalog:         a.catalog,
		Chat:            a.chat,
		Bus:             a.bus,
		Metrics:         a.metrics,
		ContactCategory: cfg.CardDAV.Category,
	}
	if a.cardSource != nil {
		deps.ContactSync = a.syncContacts
		go a.runContactSync(ctx, time.Duration(cfg.CardDAV.SyncIntervalMin)*time.Minute)
	} else {
		logger.Info("carddav sync disabled (not configured)")
	}
	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, deps, logger.With("component", "api"))

	var mqttPub *mqtt.Publisher
	if cfg.MQTT.Enabled {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("mqtt instance id: %w", err)
		}
		var commands mqtt.CommandTarget
		if cfg.MQTT.Commands {
			commands = a.calls
		}
		mqttPub = mqtt.New(cfg.MQTT, instanceID, a.store, a.bus, commands, logger.With("component", "mqtt"))
		if err := mqttPub.Start(ctx); err != nil {
			return fmt.Errorf("start mqtt: %w", err)
		}
		logger.Info("mqtt publishing enabled",
			"broker", cfg.MQTT.Broker,
			"device_name", cfg.MQTT.DeviceName,
			"interval", cfg.MQTT.PublishIntervalSec,
			"commands", cfg.MQTT.Commands,
		)
	} else {
		logger.Info("mqtt publishing disabled (not configured)")
	}

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

	logger.Info("Voice Wizard stopped")
	return nil
}

// runContactSync pulls the CardDAV address book once, then every
// interval until ctx ends. A zero interval syncs only once.
func (a *app) runContactSync(ctx context.Context, interval time.Duration) {
	syncOnce := func() {
		res, err := a.syncContacts(ctx)
		if err != nil {
			if ctx.Err() == nil {
				a.logger.Warn("carddav sync failed", "error", err)
			}
			return
		}
		a.logger.Info("carddav sync finished", "added", res.Added, "updated", res.Updated, "skipped", res.Skipped)
	}

	syncOnce()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			syncOnce()
		}
	}
}

// runSimulate rings the phone with number and prints every call event
// until the call ends on its own or the follow duration elapses.
func runSimulate(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, args []string) error {
	var number, agentID string
	follow := defaultSimulateFor
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-for" && i+1 < len(args):
			d, err := time.ParseDuration(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid -for duration %q: %w", args[i+1], err)
			}
			follow = d
			i++
		case args[i] == "-agent" && i+1 < len(args):
			agentID = args[i+1]
			i++
		case number == "" && !strings.HasPrefix(args[i], "-"):
			number = args[i]
		default:
			return fmt.Errorf("unexpected argument: %s", args[i])
		}
	}
	if number == "" {
		return errors.New("usage: voicewizard simulate <number> [-for 30s] [-agent id]")
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, configuredLogger(stderr, cfg))
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sub := a.bus.Subscribe(64)
	defer a.bus.Unsubscribe(sub)

	if _, err := a.calls.StartIncomingCall(number); err != nil {
		return err
	}
	if agentID != "" {
		if _, err := a.calls.AcceptCall(agentID); err != nil {
			a.calls.EndCall()
			return err
		}
	}

	timeout := time.NewTimer(follow)
	defer timeout.Stop()
	for {
		select {
		case <-ctx.Done():
			a.calls.EndCall()
			return nil
		case <-timeout.C:
			a.calls.EndCall()
			drain(stdout, outputFmt, sub)
			return nil
		case e := <-sub:
			if err := printEvent(stdout, outputFmt, e); err != nil {
				return err
			}
			if e.Kind == events.KindCallEnded {
				return nil
			}
		}
	}
}

// drain prints the events already buffered on sub.
func drain(w io.Writer, outputFmt string, sub <-chan events.Event) {
	for {
		select {
		case e := <-sub:
			_ = printEvent(w, outputFmt, e)
		default:
			return
		}
	}
}

func printEvent(w io.Writer, outputFmt string, e events.Event) error {
	if e.Source != events.SourceCall {
		return nil
	}
	if outputFmt == "json" {
		return json.NewEncoder(w).Encode(e)
	}
	ts := e.Timestamp.Format("15:04:05")
	switch e.Kind {
	case events.KindTranscriptLine:
		fmt.Fprintf(w, "%s  %-6s %v\n", ts, e.Data["speaker"], e.Data["text"])
	case events.KindCallIncoming:
		fmt.Fprintf(w, "%s  ringing: %v\n", ts, e.Data["number"])
	default:
		fmt.Fprintf(w, "%s  %s", ts, e.Kind)
		for _, k := range []string{"agent_id", "mode", "reason", "duration_ms"} {
			if v, ok := e.Data[k]; ok {
				fmt.Fprintf(w, " %s=%v", k, v)
			}
		}
		fmt.Fprintln(w)
	}
	return nil
}

// runAsk sends a single user message through the chat bridge, tools
// included, and prints the reply.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, args []string) error {
	var provider string
	var words []string
	for i := 0; i < len(args); i++ {
		if args[i] == "-provider" && i+1 < len(args) {
			provider = args[i+1]
			i++
			continue
		}
		words = append(words, args[i])
	}
	question := strings.TrimSpace(strings.Join(words, " "))
	if question == "" {
		return errors.New("usage: voicewizard ask [-provider name] <question>")
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, configuredLogger(stderr, cfg))
	if err != nil {
		return err
	}
	defer a.close()

	if provider == "" {
		provider = a.chat.DefaultProvider()
	}
	response, err := a.chat.GetAIResponse(ctx, []llm.Message{{Role: llm.RoleUser, Content: question}}, provider)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if outputFmt == "json" {
		return writeJSON(stdout, map[string]string{"provider": provider, "response": response})
	}
	fmt.Fprintln(stdout, response)
	return nil
}

// runContacts handles the contacts import, export and sync subcommands.
func runContacts(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: voicewizard contacts <import|export|sync>")
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, configuredLogger(stderr, cfg))
	if err != nil {
		return err
	}
	defer a.close()

	switch args[0] {
	case "import":
		if len(args) < 2 {
			return errors.New("usage: voicewizard contacts import <file.vcf> [category]")
		}
		category := cfg.CardDAV.Category
		if len(args) > 2 {
			category = args[2]
		}
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		res, err := a.contacts.ImportVCard(f, category)
		if err != nil {
			return fmt.Errorf("import %s: %w", args[1], err)
		}
		return printImportResult(stdout, outputFmt, res.Added, res.Updated, res.Skipped)
	case "export":
		return a.contacts.ExportVCard(stdout)
	case "sync":
		res, err := a.syncContacts(ctx)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		return printImportResult(stdout, outputFmt, res.Added, res.Updated, res.Skipped)
	default:
		return fmt.Errorf("unknown contacts command: %s", args[0])
	}
}

func printImportResult(w io.Writer, outputFmt string, added, updated, skipped int) error {
	if outputFmt == "json" {
		return writeJSON(w, map[string]int{"added": added, "updated": updated, "skipped": skipped})
	}
	fmt.Fprintf(w, "%d added, %d updated, %d skipped\n", added, updated, skipped)
	return nil
}

// runInit writes an example config into dir. Existing files are never
// overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Voice Wizard in %s\n", dir)

	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	// The config may hold API keys and broker passwords.
	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, examples.ConfigYAML, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml, then run: voicewizard serve")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist.
func writeIfMissing(path string, content []byte, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, content, perm)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// configuredLogger builds the logger for cfg's level and format.
func configuredLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	// Validate already rejected unknown levels.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	return config.NewLogger(w, level, cfg.LogFormat)
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty that exact path is used and must exist.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
