package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/realmwalker-project/realmwalker/internal/events"
)

// handleGetConfig returns the current configuration with secrets removed.
func (s *Server) handleGetConfig(c *gin.Context) {
	account := s.cfg.GetAccount()
	account.Password = redacted(account.Password)

	security := s.cfg.GetSecurity()
	security.APIToken = redacted(security.APIToken)

	discord := s.cfg.GetDiscord()
	discord.WebhookURL = redacted(discord.WebhookURL)

	c.JSON(http.StatusOK, gin.H{
		"account":    account,
		"connection": s.cfg.GetConnection(),
		"reconnect":  s.cfg.GetReconnect(),
		"behaviour":  s.cfg.GetBehaviour(),
		"broadcast":  s.cfg.GetBroadcast(),
		"health":     s.cfg.GetHealth(),
		"mqtt":       s.cfg.GetMQTT(),
		"api":        s.cfg.GetAPI(),
		"security":   security,
		"discord":    discord,
		"journal":    s.cfg.GetJournal(),
		"script":     s.cfg.GetScript(),
		"logging":    s.cfg.GetLogging(),
	})
}

func redacted(v string) string {
	if v == "" {
		return ""
	}
	return "********"
}

type logLevelRequest struct {
	Level string `json:"level" binding:"required"`
}

// handleSetLogLevel changes the global log level and persists it.
func (s *Server) handleSetLogLevel(c *gin.Context) {
	var req logLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "level is required"})
		return
	}

	lvl, err := zerolog.ParseLevel(req.Level)
	if err != nil || lvl == zerolog.NoLevel {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log level: " + req.Level})
		return
	}

	zerolog.SetGlobalLevel(lvl)
	s.cfg.SetLogLevel(lvl.String())
	if err := s.cfg.Save(); err != nil {
		log.Warn().Err(err).Msg("failed to persist log level")
	}
	s.eventBus.Emit(context.Background(), events.New(events.EventConfigChanged, "api", map[string]string{
		"logging.level": lvl.String(),
	}))
	c.JSON(http.StatusOK, gin.H{"status": "ok", "level": lvl.String()})
}
