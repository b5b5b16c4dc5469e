// Package server wires the HTTP surface together: the websocket gateway,
// the REST routes and the metrics endpoint.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/api"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/comment"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/config"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/database"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/event"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/logger"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/presence"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/relay"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/session"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/telemetry"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/utils"
)

type Server struct {
	cfg      config.Config
	store    database.Store
	registry *session.Registry
	presence *presence.Tracker
	content  *relay.ContentRelay
	cursor   *relay.CursorRelay
	comments *comment.Manager

	// access caches admission lookups so a reconnect storm does not hammer
	// the database. Entries expire rather than being invalidated, so a
	// revoked collaborator may linger for one TTL.
	access *expirable.LRU[int, *database.Document]

	upgrader     websocket.Upgrader
	queueDepth   int
	writeTimeout time.Duration
	opTimeout    time.Duration
}

func New(cfg config.Config, store database.Store) *Server {
	opTimeout := utils.ParseStringTime(cfg.Database.OperationTimeout)

	registry := session.NewRegistry()
	s := &Server{
		cfg:      cfg,
		store:    store,
		registry: registry,
		presence: presence.NewTracker(registry),
		content:  relay.NewContentRelay(registry, store, opTimeout),
		cursor:   relay.NewCursorRelay(registry),
		comments: comment.NewManager(registry, store, opTimeout),
		access: expirable.NewLRU[int, *database.Document](
			cfg.Server.AccessCacheSize, nil, utils.ParseStringTime(cfg.Server.AccessCacheTTL)),
		queueDepth:   cfg.Server.OutboundQueueSize,
		writeTimeout: utils.ParseStringTime(cfg.Server.WriteTimeout),
		opTimeout:    opTimeout,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin admits every origin when no allow-list is configured.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.Server.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWS)
	r.Handle("/metrics", telemetry.Handler())
	api.RegisterRoutes(r, s.store, s.comments)
	return r
}

type serverShutdown struct {
	srv *http.Server
}

func (sc *serverShutdown) Invoke(ctx context.Context) error {
	return sc.srv.Shutdown(ctx)
}

// Start blocks serving HTTP until the listener fails or the process is
// shut down.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	event.NewCleaner().Add(&serverShutdown{srv: srv})

	logger.InfoF("%s listening on port %d", s.cfg.AppName, s.cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
