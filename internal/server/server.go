package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/gravitas-games/gridstash/internal/config"
	"github.com/gravitas-games/gridstash/internal/network"
	"github.com/gravitas-games/gridstash/internal/store"
	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/sirupsen/logrus"
)

// Server represents the inventory server
type Server struct {
	config    *config.Config
	log       logrus.FieldLogger
	session   *Session
	upgrader  websocket.Upgrader
	httpSrv   *http.Server
	validator *network.Validator
	tokens    TokenValidator
	store     store.Store
	redis     *redis.Client

	// Connection tracking
	connections map[*Connection]bool
	connMu      sync.RWMutex

	// Shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Deps are the collaborators a server runs with
type Deps struct {
	Catalog inventory.Catalog
	Store   store.Store
	Tokens  TokenValidator
	Redis   *redis.Client // optional, closed on shutdown
	Log     logrus.FieldLogger
}

// New connects to redis, fetches the JWT key and opens the configured
// inventory store
func New(cfg *config.Config, cat inventory.Catalog, log logrus.FieldLogger) (*Server, error) {
	log.Info("Initializing server...")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("Connected to Redis")

	st, err := store.Open(cfg.Storage, redisClient, log)
	if err != nil {
		redisClient.Close()
		return nil, err
	}

	srv, err := NewWithDeps(cfg, Deps{Catalog: cat, Store: st, Redis: redisClient, Log: log})
	if err != nil {
		st.Close()
		redisClient.Close()
		return nil, err
	}

	blacklist := NewRedisBlacklist(redisClient, cfg.Redis.BlacklistPrefix)
	jwtValidator, err := NewJWTValidator(srv.ctx, cfg, blacklist, log)
	if err != nil {
		srv.cancel()
		st.Close()
		redisClient.Close()
		return nil, fmt.Errorf("failed to initialize JWT validator: %w", err)
	}
	srv.tokens = jwtValidator

	log.Info("Server initialized successfully")
	return srv, nil
}

// NewWithDeps builds a server around existing collaborators
func NewWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	validator, err := network.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to load message schemas: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		config:      cfg,
		log:         deps.Log,
		validator:   validator,
		tokens:      deps.Tokens,
		store:       deps.Store,
		redis:       deps.Redis,
		connections: make(map[*Connection]bool),
		ctx:         ctx,
		cancel:      cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{"access_token"},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	srv.session = NewSession("main", deps.Store, deps.Catalog, deps.Log, cfg.InventoryOptions()...)

	if secs := cfg.Inventory.AutosaveSeconds; secs > 0 {
		srv.wg.Add(1)
		go srv.autosave(time.Duration(secs) * time.Second)
	}
	return srv, nil
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start begins listening for connections
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.WithField("addr", addr).Info("Starting WebSocket server")
	s.log.Infof("WebSocket endpoint: ws://%s/ws", addr)
	s.log.Infof("Health endpoint: http://%s/health", addr)

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, saving every live inventory
func (s *Server) Shutdown() error {
	s.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	// closing a connection detaches and saves its inventory
	s.connMu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.connMu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}

	s.cancel()
	s.wg.Wait()

	var errs []error
	if err := s.session.SaveAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	s.log.Info("Server shutdown complete")
	return errors.Join(errs...)
}

func (s *Server) autosave(every time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.session.SaveAll(s.ctx); err != nil {
				s.log.WithError(err).Error("Autosave failed")
			}
		}
	}
}

// handleWebSocket authenticates the request and serves one player
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithField("remote", r.RemoteAddr)

	tokenString := extractTokenFromHeader(r)
	if tokenString == "" {
		log.Info("Missing JWT token")
		http.Error(w, "Missing authentication token", http.StatusUnauthorized)
		return
	}

	player, err := s.tokens.ValidateToken(tokenString)
	if err != nil {
		log.WithError(err).Info("Invalid JWT token")
		http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	conn := NewConnection(ws, s, player)
	inv, err := s.session.Attach(r.Context(), player, conn)
	if err != nil {
		log.WithError(err).Warn("Failed to attach inventory")
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(writeWait))
		ws.Close()
		return
	}
	conn.inv = inv

	s.connMu.Lock()
	s.connections[conn] = true
	s.connMu.Unlock()

	log.WithFields(logrus.Fields{"player": player.ID, "username": player.Username}).Info("WebSocket connection established")

	inv.TakeDiff()
	conn.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeWelcome,
		Payload: network.WelcomePayload{
			PlayerID: player.ID,
			Username: player.Username,
			Snapshot: inv.Snapshot(),
		},
	})

	conn.Handle()

	s.connMu.Lock()
	delete(s.connections, conn)
	s.connMu.Unlock()

	log.WithField("player", player.ID).Info("WebSocket connection closed")
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"session": s.session.GetStatus(),
	})
}
