package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/realmwalker-project/realmwalker/internal/connector"
	"github.com/realmwalker-project/realmwalker/internal/protocol"
)

type selectRequest struct {
	Name string `json:"name" binding:"required"`
}

type chatRequest struct {
	Type   string `json:"type" binding:"required"`
	Target string `json:"target"`
	Text   string `json:"text" binding:"required"`
}

// handleSelectRealm answers a pending realm choice.
func (s *Server) handleSelectRealm(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if err := s.client.Selector().SelectRealm(req.Name); err != nil {
		c.JSON(selectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("realm", req.Name).Msg("realm selected via API")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "realm": req.Name})
}

// handleSelectCharacter answers a pending character choice.
func (s *Server) handleSelectCharacter(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if err := s.client.Selector().SelectCharacter(req.Name); err != nil {
		c.JSON(selectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("character", req.Name).Msg("character selected via API")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "character": req.Name})
}

func selectionStatus(err error) int {
	switch {
	case errors.Is(err, connector.ErrNoPendingChoice):
		return http.StatusConflict
	case errors.Is(err, connector.ErrUnknownOption):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// handleChat sends a chat message.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type and text are required"})
		return
	}

	typ, ok := protocol.ParseChatType(req.Type)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown chat type: " + req.Type})
		return
	}
	if (typ == protocol.ChatWhisper || typ == protocol.ChatChannel) && req.Target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target is required for " + req.Type})
		return
	}

	if err := s.client.Say(c.Request.Context(), typ, req.Target, req.Text); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, connector.ErrNotInWorld) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// handleLogout requests a logout from the world server.
func (s *Server) handleLogout(c *gin.Context) {
	if err := s.client.Logout(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, connector.ErrNotInWorld) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	log.Info().Msg("logout requested via API")
	c.JSON(http.StatusOK, gin.H{"status": "logging_out"})
}

// handleReconnect drops the current connection; the run loop reconnects.
func (s *Server) handleReconnect(c *gin.Context) {
	if err := s.client.Disconnect(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Info().Msg("reconnect requested via API")
	c.JSON(http.StatusOK, gin.H{"status": "reconnecting"})
}
