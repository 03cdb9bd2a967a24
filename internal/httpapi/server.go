package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/bravurbot/internal/chat"
	"github.com/ent0n29/bravurbot/internal/config"
	"github.com/ent0n29/bravurbot/internal/feedback"
	"github.com/ent0n29/bravurbot/internal/memory"
	"github.com/ent0n29/bravurbot/internal/observability"
	"github.com/ent0n29/bravurbot/internal/ratelimit"
	"github.com/ent0n29/bravurbot/internal/session"
)

// TurnHandler runs one chat turn, streaming reply chunks.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req chat.TurnRequest, onChunk chat.ChunkHandler) (chat.TurnResult, error)
}

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Deps wires the server's collaborators. Chat, Feedback and Limits may be nil.
type Deps struct {
	Config   config.Config
	Sessions *session.Manager
	Messages memory.Store
	Feedback feedback.Store
	Chat     TurnHandler
	Limits   *ratelimit.Guard
	Metrics  *observability.Metrics
	// Ready maps a dependency name to its readiness probe.
	Ready  map[string]Pinger
	Logger *slog.Logger
}

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	messages memory.Store
	feedback feedback.Store
	chat     TurnHandler
	limits   *ratelimit.Guard
	metrics  *observability.Metrics
	ready    map[string]Pinger
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	messages := d.Messages
	if messages == nil {
		messages = memory.NewInMemoryStore()
	}
	sessions := d.Sessions
	if sessions == nil {
		sessions = session.NewManager(nil, d.Config.SessionRetention, logger)
	}
	cfg := d.Config
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		messages: messages,
		feedback: d.Feedback,
		chat:     d.Chat,
		limits:   d.Limits,
		metrics:  d.Metrics,
		ready:    d.Ready,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Delete("/v1/perf/latency", s.handlePerfReset)

	r.Post("/v1/session", s.handleCreateSession)
	r.Get("/v1/session/{id}", s.handleValidateSession)
	r.Post("/v1/session/{id}/end", s.handleEndSession)
	r.Post("/v1/session/{id}/language", s.handleSetLanguage)

	r.Post("/v1/chat", s.handleChat)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Get("/v1/history", s.handleHistory)
	r.Post("/v1/feedback", s.handleFeedback)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "bravurbot",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.ready))
	for name, p := range s.ready {
		if err := p.Ping(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	respondJSON(w, status, map[string]any{"status": state, "checks": checks})
}

// cors allows embedding the widget on other sites when configured to.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AllowAnyOrigin {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
