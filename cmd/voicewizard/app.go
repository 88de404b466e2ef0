package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/agents"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/appointments"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/calls"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/callstate"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/chat"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/config"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/contacts"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/events"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/httpkit"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/llm"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/metrics"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/products"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/settings"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/storage"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/tasks"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/tools"
)

// app holds every long-lived component. Subcommands build one with
// newApp and release it with close.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	docs         *storage.Store
	bus          *events.Bus
	metrics      *metrics.Metrics
	store        *callstate.Store
	settings     *settings.Store
	agents       *agents.Registry
	contacts     *contacts.Store
	tasks        *tasks.Registry
	appointments *appointments.Registry
	catalog      *products.Catalog
	calls        *calls.Controller
	tools        *tools.Registry
	chat         *chat.Bridge
	cardSource   contacts.CardSource // nil unless carddav is enabled
}

// newApp opens the databases and wires the components. The returned
// app must be closed.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, bus: events.New(), metrics: metrics.New()}

	docs, err := storage.NewStore(cfg.StorageDriver, filepath.Join(cfg.DataDir, "voicewizard.db"))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.docs = docs

	a.contacts, err = contacts.NewStore(cfg.StorageDriver, filepath.Join(cfg.DataDir, "contacts.db"), logger.With("component", "contacts"))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open contacts: %w", err)
	}

	a.catalog = products.Default()
	if cfg.ProductsFile != "" {
		if a.catalog, err = products.Load(cfg.ProductsFile); err != nil {
			a.close()
			return nil, fmt.Errorf("load products: %w", err)
		}
	}

	a.settings = settings.NewStore(docs, settings.Settings{
		AutoAnswerEnabled:  cfg.Phone.AutoAnswer,
		WorkingHoursStart:  cfg.Phone.WorkingHoursStart,
		WorkingHoursEnd:    cfg.Phone.WorkingHoursEnd,
		SilentModeEnabled:  cfg.Phone.SilentMode,
		HandleInBackground: cfg.Phone.HandleInBackground,
	}, logger.With("component", "settings"))
	a.agents = agents.NewRegistry(docs, seedAgents(cfg.Agents), cfg.VMEnabled, logger.With("component", "agents"))
	a.tasks = tasks.NewRegistry(docs, logger.With("component", "tasks"))
	a.appointments = appointments.NewRegistry(docs, logger.With("component", "appointments"))

	a.store = callstate.NewStore()
	a.calls = calls.New(calls.Deps{
		Store:    a.store,
		Settings: a.settings,
		Agents:   a.agents,
		Contacts: a.contacts,
		Events:   a.bus,
		Metrics:  a.metrics,
		Logger:   logger.With("component", "calls"),
	})

	a.tools = tools.NewRegistry(a.bus, a.metrics, logger.With("component", "tools"))
	(&tools.CraftsmanTools{
		Tasks:        a.tasks,
		Appointments: a.appointments,
		Catalog:      a.catalog,
	}).Register(a.tools)

	providers, timeouts, err := buildProviders(ctx, cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.chat = chat.New(chat.Config{
		Providers:       providers,
		Timeouts:        timeouts,
		DefaultProvider: cfg.DefaultProvider,
		Tools:           a.tools,
		Tasks:           a.tasks,
		Appointments:    a.appointments,
		Bus:             a.bus,
		Metrics:         a.metrics,
		Logger:          logger.With("component", "chat"),
	})

	if cfg.CardDAV.Enabled {
		src, err := contacts.NewCardDAVSource(
			httpkit.NewClient(httpkit.WithLogger(logger), httpkit.WithRetry(2, time.Second)),
			cfg.CardDAV.URL, cfg.CardDAV.Username, cfg.CardDAV.Password, cfg.CardDAV.AddressBook)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("carddav: %w", err)
		}
		a.cardSource = src
	}
	return a, nil
}

// syncContacts pulls the CardDAV address book into the contact store.
func (a *app) syncContacts(ctx context.Context) (contacts.ImportResult, error) {
	if a.cardSource == nil {
		return contacts.ImportResult{}, errors.New("carddav is not enabled")
	}
	res, err := a.contacts.Sync(ctx, a.cardSource, a.cfg.CardDAV.Category)
	if err != nil {
		return res, err
	}
	a.bus.Publish(events.Event{
		Source: events.SourceContacts,
		Kind:   events.KindSyncComplete,
		Data:   map[string]any{"added": res.Added, "updated": res.Updated, "source": "carddav"},
	})
	return res, nil
}

func (a *app) close() {
	if a.calls != nil {
		a.calls.Close()
	}
	if a.contacts != nil {
		if err := a.contacts.Close(); err != nil {
			a.logger.Warn("close contacts", "error", err)
		}
	}
	if a.docs != nil {
		if err := a.docs.Close(); err != nil {
			a.logger.Warn("close storage", "error", err)
		}
	}
}

func seedAgents(list []config.AgentConfig) []agents.Agent {
	out := make([]agents.Agent, 0, len(list))
	for _, c := range list {
		out = append(out, agents.Agent{
			ID:                 c.ID,
			Name:               c.Name,
			Purpose:            c.Purpose,
			SystemInstructions: c.SystemInstructions,
			IsDefault:          c.IsDefault,
			Active:             c.IsDefault,
			VoiceLabel:         c.VoiceLabel,
		})
	}
	return out
}

// buildProviders creates one LLM provider per configured entry. Each
// gets its own HTTP client; the overall deadline comes from the
// bridge's per-provider timeout, so the client only bounds the wait
// for response headers.
func buildProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]llm.Provider, map[string]time.Duration, error) {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	var providers []llm.Provider
	timeouts := make(map[string]time.Duration, len(names))
	for _, name := range names {
		pc := cfg.Providers[name]
		plog := logger.With("component", "llm", "provider", name)
		client := httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithResponseHeaderTimeout(pc.Timeout()),
			httpkit.WithLogger(plog),
		)
		timeouts[name] = pc.Timeout()

		switch pc.Kind {
		case config.ProviderGemini:
			p, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{
				Name:          name,
				APIKey:        pc.APIKey,
				BaseURL:       pc.BaseURL,
				Model:         pc.Model,
				SupportsTools: pc.SupportsTools,
				HTTPClient:    client,
			}, plog)
			if err != nil {
				return nil, nil, fmt.Errorf("provider %s: %w", name, err)
			}
			providers = append(providers, p)
		case config.ProviderOpenAI:
			providers = append(providers, llm.NewOpenAIProvider(llm.OpenAIConfig{
				Name:          name,
				APIKey:        pc.APIKey,
				BaseURL:       pc.BaseURL,
				Model:         pc.Model,
				SupportsTools: pc.SupportsTools,
				HTTPClient:    client,
			}, plog))
		}
		if pc.APIKey == "" {
			plog.Info("provider has no API key", "env", config.APIKeyEnv(name))
		}
	}
	return providers, timeouts, nil
}
