// Package api implements the control API: status and journal queries,
// realm and character selection, chat and logout, and a server-sent
// event stream of everything the client publishes.
package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/realmwalker-project/realmwalker/internal/config"
	"github.com/realmwalker-project/realmwalker/internal/connector"
	"github.com/realmwalker-project/realmwalker/internal/db"
	"github.com/realmwalker-project/realmwalker/internal/events"
	intnet "github.com/realmwalker-project/realmwalker/internal/network"
	"github.com/realmwalker-project/realmwalker/internal/protocol"
	"github.com/realmwalker-project/realmwalker/internal/session"
	"github.com/realmwalker-project/realmwalker/internal/util"
)

// Controller is the client the API drives.
type Controller interface {
	Status() connector.Status
	Session() *session.Session
	Selector() *connector.Selector
	Say(ctx context.Context, typ protocol.ChatType, target, text string) error
	Logout() error
	Disconnect() error
}

// Journal is the read side of the journal.
type Journal interface {
	RecentChat(ctx context.Context, q db.ChatQuery) ([]db.ChatEntry, error)
	Runs(ctx context.Context, limit int) ([]db.Run, error)
}

// Server is the REST API server.
type Server struct {
	cfg       *config.Config
	eventBus  *events.EventBus
	broadcast *events.Broadcast
	client    Controller
	journal   Journal

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server. journal may be nil.
func NewServer(cfg *config.Config, eventBus *events.EventBus, broadcast *events.Broadcast, client Controller, journal Journal) *Server {
	if cfg.GetLogging().Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		eventBus:  eventBus,
		broadcast: broadcast,
		client:    client,
		journal:   journal,
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	apiCfg := s.cfg.GetAPI()
	sec := s.cfg.GetSecurity()

	addr := net.JoinHostPort(apiCfg.Host, strconv.Itoa(apiCfg.Port))
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	if sec.TLSEnabled {
		if err := util.EnsureCertificate(sec.TLSCertFile, sec.TLSKeyFile, []string{apiCfg.Host, "localhost"}); err != nil {
			return fmt.Errorf("failed to prepare TLS certificate: %w", err)
		}
		cert, err := tls.LoadX509KeyPair(sec.TLSCertFile, sec.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}

	ln, err := intnet.Listen(ctx, addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Bool("tls", sec.TLSEnabled).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if sec.TLSEnabled {
		err = s.httpServer.Serve(tls.NewListener(ln, s.httpServer.TLSConfig))
	} else {
		err = s.httpServer.Serve(ln)
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	sec := s.cfg.GetSecurity()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := sec.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(NewRateLimiter(sec.RateLimitRPS).Middleware())

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/info", s.handleInfo)
	}

	auth := NewAuthMiddleware(s.cfg)
	protected := router.Group("/api")
	protected.Use(auth.IPWhitelist(), auth.RequireToken())

	monitor := protected.Group("/monitor")
	{
		monitor.GET("/status", s.handleStatus)
		monitor.GET("/realms", s.handleRealms)
		monitor.GET("/characters", s.handleCharacters)
		monitor.GET("/choice", s.handlePendingChoice)
		monitor.GET("/cpu_usage", s.handleCPUUsage)
		monitor.GET("/memory_usage", s.handleMemoryUsage)
		monitor.GET("/journal/chat", s.handleJournalChat)
		monitor.GET("/journal/runs", s.handleJournalRuns)
		monitor.GET("/events", s.handleEvents)
	}

	control := protected.Group("/control")
	{
		control.POST("/select_realm", s.handleSelectRealm)
		control.POST("/select_character", s.handleSelectCharacter)
		control.POST("/chat", s.handleChat)
		control.POST("/logout", s.handleLogout)
		control.POST("/reconnect", s.handleReconnect)
	}

	configure := protected.Group("/configure")
	{
		configure.GET("/get_config", s.handleGetConfig)
		configure.POST("/set_log_level", s.handleSetLogLevel)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})
	return router
}
