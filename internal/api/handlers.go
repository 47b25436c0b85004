package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jsvoboda/goaliesync/internal/importer"
	"github.com/jsvoboda/goaliesync/internal/lifecycle"
	"github.com/jsvoboda/goaliesync/internal/localstore"
	"github.com/jsvoboda/goaliesync/internal/models"
	"github.com/jsvoboda/goaliesync/internal/services"
	syncengine "github.com/jsvoboda/goaliesync/internal/sync"
)

// Handler is the JSON surface over the tracker. It only orchestrates; all
// semantics live in services, importer and the sync engine.
type Handler struct {
	tracker  *services.Tracker
	local    *localstore.Store
	engine   *syncengine.Engine
	importer *importer.Importer
	logger   *logrus.Logger
}

func NewHandler(tracker *services.Tracker, local *localstore.Store, engine *syncengine.Engine, imp *importer.Importer, logger *logrus.Logger) *Handler {
	return &Handler{tracker: tracker, local: local, engine: engine, importer: imp, logger: logger}
}

func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api")

	api.GET("/matches", h.listMatches)
	api.POST("/matches", h.createMatch)
	api.DELETE("/matches/:id", h.deleteMatch)
	api.POST("/matches/:id/close", h.closeMatch)
	api.POST("/matches/:id/reopen", h.reopenMatch)
	api.POST("/matches/:id/cancel", h.cancelMatch)
	api.PUT("/matches/:id/goalie", h.assignGoalie)
	api.DELETE("/matches/:id/goalie", h.unassignGoalie)
	api.PUT("/matches/:id/manual-stats", h.setManualStats)
	api.PUT("/matches/:id/score", h.setScore)
	api.GET("/matches/:id/events", h.listMatchEvents)

	api.GET("/goalies", h.listGoalies)
	api.POST("/goalies", h.createGoalie)
	api.GET("/teams", h.listTeams)
	api.GET("/competitions", h.listCompetitions)
	api.GET("/seasons", h.listSeasons)

	api.POST("/events", h.recordEvent)
	api.DELETE("/events/:id", h.deleteEvent)

	api.POST("/import", h.runImport)

	api.POST("/sync/upload", h.syncUpload)
	api.POST("/sync/download", h.syncDownload)
	api.GET("/sync/status", h.syncStatus)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, services.ErrNotFound) {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) listMatches(c *gin.Context) {
	matches, err := h.local.Matches()
	if err != nil {
		h.fail(c, err)
		return
	}
	// Normalization runs on every read; legacy rows never leak open/closed.
	for i := range matches {
		matches[i].Status = lifecycle.NormalizeStatus(string(matches[i].Status))
	}
	c.JSON(http.StatusOK, matches)
}

func (h *Handler) createMatch(c *gin.Context) {
	var match models.Match
	if err := c.ShouldBindJSON(&match); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.tracker.CreateMatch(match)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) deleteMatch(c *gin.Context) {
	if err := h.tracker.DeleteMatch(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) closeMatch(c *gin.Context) {
	match, err := h.tracker.CloseMatch(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func (h *Handler) reopenMatch(c *gin.Context) {
	match, err := h.tracker.ReopenMatch(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func (h *Handler) cancelMatch(c *gin.Context) {
	match, err := h.tracker.CancelMatch(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func (h *Handler) assignGoalie(c *gin.Context) {
	var body struct {
		GoalieID string `json:"goalie_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	match, err := h.tracker.AssignGoalie(c.Param("id"), body.GoalieID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func (h *Handler) unassignGoalie(c *gin.Context) {
	match, err := h.tracker.UnassignGoalie(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func (h *Handler) setManualStats(c *gin.Context) {
	var stats *models.ManualStats
	if err := c.ShouldBindJSON(&stats); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	match, err := h.tracker.SetManualStats(c.Param("id"), stats)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func (h *Handler) setScore(c *gin.Context) {
	var score *models.Score
	if err := c.ShouldBindJSON(&score); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	match, err := h.tracker.SetScore(c.Param("id"), score)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func (h *Handler) listMatchEvents(c *gin.Context) {
	events, err := h.local.EventsForMatch(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	live := make([]models.GoalieEvent, 0, len(events))
	for _, ev := range events {
		if ev.Live() {
			live = append(live, ev)
		}
	}
	c.JSON(http.StatusOK, live)
}

func (h *Handler) listGoalies(c *gin.Context) {
	goalies, err := h.local.Goalies()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, goalies)
}

func (h *Handler) createGoalie(c *gin.Context) {
	var goalie models.Goalie
	if err := c.ShouldBindJSON(&goalie); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.tracker.CreateGoalie(goalie)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) listTeams(c *gin.Context) {
	teams, err := h.local.Teams()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, teams)
}

func (h *Handler) listCompetitions(c *gin.Context) {
	competitions, err := h.local.Competitions()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, competitions)
}

func (h *Handler) listSeasons(c *gin.Context) {
	seasons, err := h.tracker.Seasons()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, seasons)
}

func (h *Handler) recordEvent(c *gin.Context) {
	var event models.GoalieEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.tracker.RecordEvent(event)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) deleteEvent(c *gin.Context) {
	if err := h.tracker.DeleteEvent(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// staticProducer adapts an already-parsed request body to the Producer
// interface, so a pasted batch goes down the same path as a scraper.
type staticProducer struct {
	source  models.MatchSource
	records []importer.Record
}

func (p staticProducer) Source() models.MatchSource { return p.source }

func (p staticProducer) Fetch(_ context.Context) ([]importer.Record, error) {
	return p.records, nil
}

func (h *Handler) runImport(c *gin.Context) {
	var body struct {
		Source  models.MatchSource `json:"source"`
		Records []importer.Record  `json:"records" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Source == "" {
		body.Source = models.SourceImported
	}
	summary, err := h.importer.Run(c.Request.Context(), staticProducer{source: body.Source, records: body.Records})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) syncUpload(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Upload(c.Request.Context()))
}

func (h *Handler) syncDownload(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Download(c.Request.Context()))
}

func (h *Handler) syncStatus(c *gin.Context) {
	status := gin.H{
		"configured":   h.engine.Configured(),
		"in_flight":    h.engine.InFlight(),
		"last_sync_at": h.engine.LastSync(),
	}
	if h.engine.Configured() {
		if n, err := h.engine.RemoteMatchCount(c.Request.Context()); err == nil {
			status["remote_matches"] = n
		}
	}
	c.JSON(http.StatusOK, status)
}
