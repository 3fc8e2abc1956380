package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/KingRain/octrix/internal/models"
	"github.com/KingRain/octrix/internal/services"
	"github.com/KingRain/octrix/internal/store"
)

type handlers struct {
	orchestrator *services.Orchestrator
	logger       *slog.Logger
}

func (h *handlers) register(router *gin.Engine) {
	router.GET("/healthz", h.health)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/incidents", h.listIncidents)
		apiGroup.GET("/incidents/stats", h.stats)
		apiGroup.GET("/incidents/:id", h.getIncident)
		apiGroup.POST("/incidents/:id/acknowledge", h.acknowledgeIncident)
		apiGroup.POST("/incidents/:id/resolve", h.resolveIncident)
		apiGroup.POST("/incidents/:id/heal", h.healIncident)

		apiGroup.GET("/rules", h.listRules)
		apiGroup.POST("/rules", h.createRule)
		apiGroup.PUT("/rules/:id", h.updateRule)
		apiGroup.POST("/rules/:id/toggle", h.toggleRule)

		apiGroup.GET("/events", h.listEvents)
		apiGroup.DELETE("/events", h.clearEvents)

		apiGroup.GET("/escalations", h.listEscalations)
		apiGroup.GET("/automation", h.automationStatus)
		apiGroup.POST("/automation/unfreeze", h.unfreeze)

		apiGroup.GET("/patterns", h.listPatterns)
		apiGroup.POST("/simulate", h.simulate)
	}
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) listIncidents(c *gin.Context) {
	incidents, err := h.orchestrator.ListIncidents(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, incidents)
}

func (h *handlers) getIncident(c *gin.Context) {
	inc, err := h.orchestrator.GetIncident(c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

func (h *handlers) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Stats())
}

type acknowledgeRequest struct {
	By string `json:"by"`
}

func (h *handlers) acknowledgeIncident(c *gin.Context) {
	var req acknowledgeRequest
	// Body is optional; an empty acknowledger defaults to "operator".
	_ = c.ShouldBindJSON(&req)
	if req.By == "" {
		req.By = "operator"
	}
	inc, err := h.orchestrator.AcknowledgeIncident(c.Param("id"), req.By)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

func (h *handlers) resolveIncident(c *gin.Context) {
	inc, err := h.orchestrator.ResolveIncident(c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

func (h *handlers) healIncident(c *gin.Context) {
	inc, err := h.orchestrator.ManualHeal(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

func (h *handlers) listRules(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.ListRules())
}

func (h *handlers) createRule(c *gin.Context) {
	var rule models.HealingRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.orchestrator.CreateRule(rule)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *handlers) updateRule(c *gin.Context) {
	var rule models.HealingRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := h.orchestrator.UpdateRule(c.Param("id"), rule)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *handlers) toggleRule(c *gin.Context) {
	rule, err := h.orchestrator.ToggleRule(c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *handlers) listEvents(c *gin.Context) {
	events := h.orchestrator.ListEvents()
	if events == nil {
		events = []models.HealingEvent{}
	}
	c.JSON(http.StatusOK, events)
}

func (h *handlers) clearEvents(c *gin.Context) {
	h.orchestrator.ClearEvents()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (h *handlers) listEscalations(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Escalations())
}

func (h *handlers) automationStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.AutomationStatus())
}

type unfreezeRequest struct {
	By string `json:"by" binding:"required"`
}

func (h *handlers) unfreeze(c *gin.Context) {
	var req unfreezeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "acknowledger identity is required"})
		return
	}
	if !h.orchestrator.Unfreeze(req.By) {
		c.JSON(http.StatusConflict, gin.H{"error": "automation is not frozen"})
		return
	}
	c.JSON(http.StatusOK, h.orchestrator.AutomationStatus())
}

func (h *handlers) listPatterns(c *gin.Context) {
	patterns := h.orchestrator.Patterns()
	if patterns == nil {
		patterns = []models.RecurringPattern{}
	}
	c.JSON(http.StatusOK, patterns)
}

type simulateRequest struct {
	Category string                        `json:"category" binding:"required"`
	Resource models.ResourceRef            `json:"resource" binding:"required"`
	Metrics  map[string]float64            `json:"metrics"`
	Signals  *models.ClassificationSignals `json:"signals"`
}

func (h *handlers) simulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inc, err := h.orchestrator.Inject(c.Request.Context(), req.Category, req.Resource, req.Metrics, req.Signals)
	if err != nil {
		if strings.Contains(err.Error(), "cooldown") {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, inc)
}

// renderError maps store/service failures onto HTTP status codes.
func (h *handlers) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case strings.Contains(err.Error(), "illegal transition"),
		strings.Contains(err.Error(), "already"):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
