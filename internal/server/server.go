// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jeranaias/flai-tui/internal/logging"
	"github.com/jeranaias/flai-tui/internal/model"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is where the development server listens by default. It
	// matches the client's default backend URL.
	DefaultAddr = "127.0.0.1:8000"

	// DefaultEmail and DefaultPassword are the credentials of the single
	// development account.
	DefaultEmail    = "dev@flai.local"
	DefaultPassword = "flai"

	// DefaultPageSize and MaxPageSize bound conversation list pages.
	DefaultPageSize = 10
	MaxPageSize     = 100

	// MaxRequestBodySize is the maximum size of a request body (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// Version is the server version.
	Version = "0.1.0"
)

// Envelope codes.
const (
	codeOK               = 0
	codeInternal         = 50
	codeInvalidParameter = 51
	codeNotFound         = 65
	codeUnauthorized     = 401
)

// ============================================================================
// OPTIONS
// ============================================================================

// Options configure a Server. Every field is optional.
type Options struct {
	// Email, Password and Username describe the development account.
	Email    string
	Password string
	Username string

	// TOTPSecret is a base32 secret. When set, logins also need the current
	// six-digit code.
	TOTPSecret string

	// Secret signs tokens. A random secret is generated when empty, which
	// invalidates tokens across restarts.
	Secret []byte

	// Providers is the model catalog. DefaultProviders is used when empty.
	Providers []model.Provider

	// Reply scripts assistant replies. ScriptedReply is used when nil.
	Reply ReplyFunc

	// ChunkDelay paces streamed chunks. Zero streams as fast as possible.
	ChunkDelay time.Duration

	// RequestsPerSecond limits the request rate. Zero disables limiting.
	RequestsPerSecond float64

	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// DefaultProviders returns the built-in model catalog.
func DefaultProviders() []model.Provider {
	return []model.Provider{
		{
			ID:           "gemini",
			Name:         "Google",
			ProviderType: "gemini",
			Models: []model.ModelInfo{
				{
					ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", Family: "gemini",
					Reasoning: true, ToolCall: true, Attachment: true,
					Limit: &model.ModelLimit{Context: 1048576, Output: 65536},
				},
				{
					ID: "gemini-2.5-flash-lite", Name: "Gemini 2.5 Flash Lite", Family: "gemini",
					Limit: &model.ModelLimit{Context: 1048576, Output: 65536},
				},
			},
		},
		{
			ID:           "openai",
			Name:         "OpenAI",
			ProviderType: "openai",
			Models: []model.ModelInfo{
				{
					ID: "gpt-4o-mini", Name: "GPT-4o mini", Family: "gpt",
					ToolCall: true, Attachment: true,
					Cost:  &model.ModelCost{Input: 0.15, Output: 0.6},
					Limit: &model.ModelLimit{Context: 128000, Output: 16384},
				},
			},
		},
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the in-memory development backend.
type Server struct {
	account   *account
	tokens    *TokenManager
	store     *memoryStore
	providers []model.Provider
	reply     ReplyFunc
	delay     time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	router chi.Router

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// New creates a server from opts.
func New(opts Options) (*Server, error) {
	if opts.Email == "" {
		opts.Email = DefaultEmail
	}
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	if opts.Username == "" {
		opts.Username, _, _ = strings.Cut(opts.Email, "@")
	}
	if len(opts.Secret) == 0 {
		opts.Secret = make([]byte, 32)
		if _, err := rand.Read(opts.Secret); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
	}
	if len(opts.Providers) == 0 {
		opts.Providers = DefaultProviders()
	}
	if opts.Reply == nil {
		opts.Reply = ScriptedReply
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	acct, err := newAccount(model.User{
		ID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte("flai:"+opts.Email)).String(),
		Email:    opts.Email,
		Username: opts.Username,
		Role:     "user",
		IsActive: 1,
	}, opts.Password, opts.TOTPSecret)
	if err != nil {
		return nil, err
	}

	s := &Server{
		account:   acct,
		tokens:    NewTokenManager(opts.Secret, opts.Now),
		store:     newMemoryStore(),
		providers: opts.Providers,
		reply:     opts.Reply,
		delay:     opts.ChunkDelay,
		logger:    opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if opts.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(1, int(opts.RequestsPerSecond)))
	}
	s.setupRoutes()
	return s, nil
}

// Tokens returns the token manager, for tests that need to mint tokens.
func (s *Server) Tokens() *TokenManager {
	return s.tokens
}

// Handler returns the root HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(SecurityHeadersMiddleware())
	r.Use(LoggingMiddleware(s.logger))
	r.Use(RateLimitMiddleware(s.limiter, s.logger))
	r.Use(middleware.StripSlashes)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(s.tokens, s.logger))

			r.Get("/conversation", s.handleListConversations)
			r.Post("/conversation", s.handleCreateConversation)
			r.Get("/conversation/{id}", s.handleGetConversation)
			r.Delete("/conversation/{id}", s.handleDeleteConversation)
			r.Get("/conversation/{id}/generate-title", s.handleGenerateTitle)

			r.Get("/provider", s.handleListProviders)

			r.Post("/messages", s.handleSendMessage)
			r.Delete("/messages", s.handleDeleteMessages)
		})
	})

	s.router = r
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("server started", "addr", addr, "version", Version, "email", s.account.user.Email)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a server started with ListenAndServe.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.closed = true
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("server shutting down")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeEnvelope(w http.ResponseWriter, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(env)
}

// writeData writes a successful envelope.
func writeData(w http.ResponseWriter, data any) {
	writeEnvelope(w, envelope{Code: codeOK, Message: "OK", Data: data})
}

// writeError writes a failed envelope. The HTTP status stays 200.
func writeError(w http.ResponseWriter, code int, message string) {
	writeEnvelope(w, envelope{Code: code, Message: message})
}

// storeError maps a store error to its envelope.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errConversationNotFound):
		writeError(w, codeNotFound, err.Error())
	case errors.Is(err, errInvalidMessagePath), errors.Is(err, errNoMessageIDs):
		writeError(w, codeInvalidParameter, err.Error())
	default:
		writeError(w, codeInternal, err.Error())
	}
}

// decodeBody decodes a JSON body limited to MaxRequestBodySize.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, codeInvalidParameter, fmt.Sprintf("Request body exceeds maximum size of %d bytes", MaxRequestBodySize))
			return false
		}
		writeError(w, codeInvalidParameter, "Invalid request format")
		return false
	}
	return true
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
