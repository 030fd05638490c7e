package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/realmwalker-project/realmwalker/internal/db"
	"github.com/realmwalker-project/realmwalker/internal/util"
)

// handleStatus returns the client run state and the session snapshot.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.client.Status())
}

// handleRealms returns the last received realm list.
func (s *Server) handleRealms(c *gin.Context) {
	sess := s.client.Session()
	selected := ""
	if r, ok := sess.SelectedRealm(); ok {
		selected = r.Name
	}
	c.JSON(http.StatusOK, gin.H{
		"realms":   sess.Realms(),
		"selected": selected,
	})
}

// handleCharacters returns the last received character list.
func (s *Server) handleCharacters(c *gin.Context) {
	sess := s.client.Session()
	active := ""
	if ch, ok := sess.ActiveCharacter(); ok {
		active = ch.Name
	}
	c.JSON(http.StatusOK, gin.H{
		"characters": sess.Characters(),
		"active":     active,
	})
}

// handlePendingChoice returns the selection the client is waiting on.
func (s *Server) handlePendingChoice(c *gin.Context) {
	req, ok := s.client.Selector().Pending()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"pending": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pending": true,
		"kind":    req.Kind,
		"options": req.Options,
	})
}

// handleCPUUsage returns current CPU usage.
func (s *Server) handleCPUUsage(c *gin.Context) {
	usage, err := util.GetCPUUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cpu_usage": usage})
}

// handleMemoryUsage returns system and process memory usage.
func (s *Server) handleMemoryUsage(c *gin.Context) {
	memUsage, err := util.GetMemoryUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"system": memUsage}
	if proc, err := util.GetProcessStats(); err == nil {
		resp["process"] = proc
	}
	c.JSON(http.StatusOK, resp)
}

// handleJournalChat returns recorded chat, newest first.
// Query: sender, since (RFC3339), limit.
func (s *Server) handleJournalChat(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}

	q := db.ChatQuery{Sender: c.Query("sender"), Limit: 100}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		q.Limit = n
	}
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		q.Since = t
	}

	entries, err := s.journal.RecentChat(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": entries})
}

// handleJournalRuns returns the most recent connection runs.
func (s *Server) handleJournalRuns(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := s.journal.Runs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// handleEvents streams client events as server-sent events until the
// request ends.
func (s *Server) handleEvents(c *gin.Context) {
	ch, unsubscribe := s.broadcast.Subscribe("sse-" + uuid.NewString())
	defer unsubscribe()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
