// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/flai-tui/internal/api"
	"github.com/jeranaias/flai-tui/internal/config"
	"github.com/jeranaias/flai-tui/internal/conversation"
	"github.com/jeranaias/flai-tui/internal/logging"
	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/state"
	"github.com/jeranaias/flai-tui/internal/storage"
	"github.com/jeranaias/flai-tui/internal/telemetry"
)

// listPageSize is how many conversations are fetched at startup.
const listPageSize = 50

// Options are the global flags shared by every command.
type Options struct {
	ServerURL string
	Theme     string
	LogLevel  string
	NoCache   bool
	JSON      bool
}

// =============================================================================
// APP
// =============================================================================

// App wires the configuration, logger, state, API client and offline cache
// for one command invocation.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	State  *state.State
	Client *api.Client
	// Cache is nil when caching is disabled or the database could not be
	// opened.
	Cache *storage.MessageCache
	// Usage is nil when the ledger directory could not be created.
	Usage *telemetry.Tracker

	JSON bool
	In   io.Reader
	Out  io.Writer
	Err  io.Writer

	closers []io.Closer
}

// NewApp loads the configuration and opens everything a command needs.
// Problems with optional pieces (log file, cache, a corrupt state file) are
// reported on errOut and the command continues without them.
func NewApp(opts Options, in io.Reader, out, errOut io.Writer) (*App, error) {
	a := &App{JSON: opts.JSON, In: in, Out: out, Err: errOut}

	cfg, err := config.Load()
	if err != nil {
		if cfg == nil {
			return nil, err
		}
		a.warn("config: %v; using defaults", err)
	}
	if opts.ServerURL != "" {
		cfg.Server.URL = strings.TrimRight(opts.ServerURL, "/")
	}
	if opts.Theme != "" {
		cfg.UI.Theme = strings.ToLower(opts.Theme)
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = strings.ToLower(opts.LogLevel)
	}
	if opts.NoCache {
		cfg.Storage.CacheEnabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	config.SetGlobal(cfg)
	a.Config = cfg

	a.Logger = logging.Discard()
	if path, err := cfg.LogPath(); err == nil {
		logger, closer, err := logging.OpenFile(path, cfg.Log.Level)
		if err != nil {
			a.warn("logging disabled: %v", err)
		} else {
			a.Logger = logger
			a.closers = append(a.closers, closer)
		}
	}

	statePath, err := cfg.StatePath()
	if err != nil {
		return nil, fmt.Errorf("locate state file: %w", err)
	}
	st, err := state.Load(statePath)
	if err != nil {
		a.warn("state: %v; starting fresh", err)
		a.Logger.Warn("discarded unreadable state", "path", statePath, "error", err)
	}
	a.State = st

	a.Client = api.NewClient(cfg.Server.URL).
		WithTimeout(cfg.Server.Timeout()).
		WithRateLimit(cfg.Server.RequestsPerSecond).
		WithTokenSource(st).
		WithLogger(a.Logger)
	a.Client.OnUnauthorized(func() {
		a.Logger.Warn("session rejected by the backend, signing out")
		st.Logout()
	})

	if cfg.Storage.CacheEnabled {
		a.openCache()
	}
	a.openUsage()

	a.Logger.Debug("app ready", "server", cfg.Server.URL, "cache", a.Cache != nil)
	return a, nil
}

func (a *App) openCache() {
	path, err := a.Config.CachePath()
	if err != nil {
		a.warn("offline cache disabled: %v", err)
		return
	}
	cfg := storage.DefaultConfig(path)
	cfg.Logger = a.Logger
	c, err := storage.Open(cfg)
	if err != nil {
		a.warn("offline cache disabled: %v", err)
		a.Logger.Warn("failed to open cache", "path", path, "error", err)
		return
	}
	a.Cache = c
	a.closers = append(a.closers, c)
}

func (a *App) openUsage() {
	dir, err := a.Config.UsageDir()
	if err == nil {
		a.Usage, err = telemetry.NewTracker(dir, nil)
	}
	if err != nil {
		a.Logger.Warn("usage ledger disabled", "error", err)
		return
	}
	if keep := a.Config.Storage.UsageRetentionDays; keep > 0 {
		if n, err := a.Usage.Prune(keep); err != nil {
			a.Logger.Warn("failed to prune usage ledger", "error", err)
		} else if n > 0 {
			a.Logger.Debug("usage ledger pruned", "days", n)
		}
	}
}

// recordUsage adds a finished reply to the usage ledger, priced with the
// catalog entry of the model that produced it.
func (a *App) recordUsage(conversationID string, reply model.Message) {
	if a.Usage == nil || reply.MetaInfo == nil {
		return
	}
	info, ok := model.FindModel(a.State.Providers(), reply.MetaInfo.ModelName)
	if !ok {
		info, _ = a.State.CurrentModel()
	}
	err := a.Usage.Record(conversationID, reply, info.Cost)
	if err != nil && !errors.Is(err, telemetry.ErrNoUsage) {
		a.Logger.Warn("failed to record usage", "message", reply.ID, "error", err)
	}
}

// Close saves the state and releases the cache and log file.
func (a *App) Close() error {
	var errs []error
	if err := a.State.Save(); err != nil {
		errs = append(errs, err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) warn(format string, args ...any) {
	fmt.Fprintf(a.Err, "%s %s\n", WarningStyle.Render("[!]"), fmt.Sprintf(format, args...))
}

// =============================================================================
// SHARED OPERATIONS
// =============================================================================

// requireLogin fails unless a valid token is held.
func (a *App) requireLogin() error {
	if !a.State.IsAuthenticated() {
		return errNotSignedIn
	}
	return nil
}

// Bootstrap fetches the model catalog and the first page of conversations
// concurrently. When the backend is unreachable the cached conversation list
// is used and offline is true; the returned error is then the network error.
func (a *App) Bootstrap(ctx context.Context) (offline bool, err error) {
	var (
		providers []model.Provider
		page      *model.Page[model.Conversation]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		providers, err = a.Client.ListProviders(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		page, err = a.Client.ListConversations(gctx, 1, listPageSize)
		return err
	})

	if err := g.Wait(); err != nil {
		if api.IsNetwork(err) && a.Cache != nil {
			if cached, cerr := a.Cache.ListConversations(ctx); cerr == nil && len(cached) > 0 {
				a.State.SetConversations(cached)
				a.Logger.Info("using cached conversation list", "count", len(cached))
				return true, err
			}
		}
		return false, err
	}

	a.State.SetProviders(providers)
	if m, ok := a.State.SelectDefaultModel(); ok {
		a.Logger.Debug("model selected", "provider", m.ProviderID, "model", m.ID)
	}
	a.State.SetConversations(page.Records)
	a.saveList(ctx)
	return false, nil
}

// saveList copies the conversation list into the offline cache.
func (a *App) saveList(ctx context.Context) {
	if a.Cache == nil {
		return
	}
	if err := a.Cache.SaveConversationList(ctx, a.State.Conversations()); err != nil {
		a.Logger.Warn("failed to cache conversation list", "error", err)
	}
}

// resolveConversation finds a conversation by id or unique prefix. With
// create set, an empty reference creates a new conversation on the backend.
func (a *App) resolveConversation(ctx context.Context, ref string, create bool) (string, error) {
	if ref == "" && !create {
		ref = a.State.CurrentConversation()
	}
	if ref == "" {
		id, err := a.Client.CreateConversation(ctx)
		if err != nil {
			return "", fmt.Errorf("create conversation: %w", err)
		}
		a.State.AddConversation(id)
		a.Logger.Info("conversation created", "conversation", id)
		return id, nil
	}

	conv, ok := a.State.FindConversation(ref)
	if !ok {
		return "", &NotFoundError{Resource: "conversation", ID: ref}
	}
	a.State.SetCurrentConversation(conv.ID)
	return conv.ID, nil
}

// NewSession creates a session over the backend with the app's model
// selection, tools and cache. A generated title is applied to the
// conversation list before onTitle runs.
func (a *App) NewSession(ctx context.Context, id string, opts conversation.Options) *conversation.Session {
	opts.Models = a.State
	if opts.Logger == nil {
		opts.Logger = a.Logger
	}
	if a.Cache != nil {
		opts.Cache = a.Cache
	}
	nextReply := opts.OnReply
	opts.OnReply = func(id string, reply model.Message) {
		a.recordUsage(id, reply)
		if nextReply != nil {
			nextReply(id, reply)
		}
	}
	next := opts.OnTitle
	opts.OnTitle = func(id string, title model.GeneratedTitle) {
		a.State.ApplyTitle(id, title)
		a.saveList(ctx)
		if next != nil {
			next(id, title)
		}
	}
	s := conversation.New(id, a.Client, opts)
	s.SetTools(a.State.Tools())
	return s
}
