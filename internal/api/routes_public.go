package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/realmwalker-project/realmwalker/internal/config"
	"github.com/realmwalker-project/realmwalker/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "realmwalker",
		"version": config.Version,
	})
}

// handleInfo returns the host and session summary.
func (s *Server) handleInfo(c *gin.Context) {
	sysInfo := util.GetSystemInfo()
	status := s.client.Status()

	c.JSON(http.StatusOK, gin.H{
		"version":   config.Version,
		"account":   s.cfg.GetAccount().Username,
		"state":     status.Session.State,
		"realm":     status.Session.Realm,
		"character": status.Session.Character,
		"platform":  sysInfo.Platform,
		"hostname":  sysInfo.Hostname,
		"cpu_cores": sysInfo.CPUCores,
	})
}
