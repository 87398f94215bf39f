package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Handshake rejection reasons recorded by Metrics.
const (
	rejectOrigin    = "origin"
	rejectAccess    = "access_code"
	rejectRateLimit = "rate_limit"
	rejectClosed    = "closed"
	rejectUpgrade   = "upgrade"
)

// HandlerConfig configures the HTTP surface.
type HandlerConfig struct {
	Origins *OriginPolicy
	// AccessPhrase, when set, must be supplied as ?code= on the websocket
	// handshake. Comparison ignores case.
	AccessPhrase   string
	HandshakeRate  rate.Limit
	HandshakeBurst int
	// TrustedProxies are the reverse proxies allowed to report the client
	// address in X-Forwarded-For.
	TrustedProxies TrustedProxies
	Version        string

	Logger  *logrus.Logger
	Metrics *Metrics
}

type handler struct {
	hub      *Hub
	cfg      HandlerConfig
	log      *logrus.Logger
	upgrader websocket.Upgrader
	limiter  *ipLimiter
}

// NewHandler creates the HTTP handler with all routes.
func NewHandler(hub *Hub, cfg HandlerConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Origins == nil {
		cfg.Origins = NewOriginPolicy([]string{"*"})
	}
	h := &handler{
		hub:     hub,
		cfg:     cfg,
		log:     cfg.Logger,
		limiter: newIPLimiter(cfg.HandshakeRate, cfg.HandshakeBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return cfg.Origins.Allow(r.Header.Get("Origin"))
			},
		},
	}

	r := mux.NewRouter()
	r.Use(requestLogger(cfg.Logger, cfg.Metrics, cfg.TrustedProxies))

	r.Methods(http.MethodGet).Path("/").HandlerFunc(h.root)
	r.Methods(http.MethodGet).Path("/health").HandlerFunc(h.health)
	r.Methods(http.MethodGet).Path("/metrics").Handler(cfg.Metrics.Handler())
	r.Methods(http.MethodPost).Path("/api/access").HandlerFunc(h.access)
	r.Methods(http.MethodGet).Path("/ws").HandlerFunc(h.serveWS)
	r.Methods(http.MethodGet).Path("/ws/{room:[A-Za-z0-9_-]{1,64}}").HandlerFunc(h.serveWS)

	cors := handlers.CORS(
		handlers.AllowedOriginValidator(cfg.Origins.Allow),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return cors(r)
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "running",
		"version":   h.cfg.Version,
		"websocket": "/ws",
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	s := h.hub.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"rooms":        s.Rooms,
		"participants": s.Participants,
		"objects":      s.Objects,
	})
}

type accessRequest struct {
	Code string `json:"code"`
}

func (h *handler) access(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !h.codeMatches(req.Code) {
		http.Error(w, "invalid access code", http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) codeMatches(code string) bool {
	if h.cfg.AccessPhrase == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(code), h.cfg.AccessPhrase)
}

func (h *handler) serveWS(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	if room == "" {
		room = DefaultRoom
	}
	ip := h.cfg.TrustedProxies.clientIP(r)
	log := h.log.WithFields(logrus.Fields{"room": room, "remote": ip})

	if origin := r.Header.Get("Origin"); !h.cfg.Origins.Allow(origin) {
		log.WithField("origin", origin).Warn("websocket origin rejected")
		h.cfg.Metrics.handshakeRejected(rejectOrigin)
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	if !h.codeMatches(r.URL.Query().Get("code")) {
		h.cfg.Metrics.handshakeRejected(rejectAccess)
		http.Error(w, "invalid access code", http.StatusUnauthorized)
		return
	}
	if !h.limiter.Allow(ip) {
		h.cfg.Metrics.handshakeRejected(rejectRateLimit)
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	relay := h.hub.Relay(room)
	if relay == nil {
		h.cfg.Metrics.handshakeRejected(rejectClosed)
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Metrics.handshakeRejected(rejectUpgrade)
		log.WithError(err).Warn("websocket upgrade error")
		return
	}

	client := newClient(relay.opts.ParticipantIDs(), relay, conn)
	for !relay.Join(client) {
		// The room was released after the lookup; open it again.
		if relay = h.hub.Relay(room); relay == nil {
			h.cfg.Metrics.handshakeRejected(rejectClosed)
			conn.Close()
			return
		}
		client.relay = relay
	}
	go client.WritePump()
	go client.ReadPump()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
