// Package api exposes the SLA engine over HTTP for the ticketing dashboard
// and the configuration service.
package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/opendesk-io/slaengine/internal/models"
	"github.com/opendesk-io/slaengine/internal/repository"
	"github.com/opendesk-io/slaengine/internal/services/obligation"
	"github.com/opendesk-io/slaengine/internal/services/policy"
	"github.com/opendesk-io/slaengine/internal/services/tracker"
)

// Handlers bundles the engine services behind the HTTP surface.
type Handlers struct {
	tracker *tracker.Service
	catalog *policy.Catalog
	repo    repository.TrackerRepository
	store   obligation.MarkerStore
	logger  *log.Logger
	now     func() time.Time
}

// NewHandlers wires the HTTP handlers.
func NewHandlers(t *tracker.Service, catalog *policy.Catalog, repo repository.TrackerRepository, store obligation.MarkerStore, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.Default()
	}
	return &Handlers{
		tracker: t,
		catalog: catalog,
		repo:    repo,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// HandleEvent ingests one ticket lifecycle event.
// POST /api/v1/sla/events
func (h *Handlers) HandleEvent(c *gin.Context) {
	var ev models.TicketEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload: " + err.Error()})
		return
	}

	state, err := h.tracker.Apply(c.Request.Context(), ev)
	if err != nil {
		var cfgErr *tracker.ConfigurationError
		switch {
		case errors.As(err, &cfgErr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, tracker.ErrUnknownTicket):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrConcurrentModification):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Printf("api: event for ticket %s failed: %v", ev.TicketID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply event"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ticket_id": ev.TicketID,
		"version":   state.Version,
		"has_sla":   state.HasSLA,
	})
}

// HandleStatus returns the SLA analysis and per-tier status of a ticket.
// GET /api/v1/sla/tickets/:ticket_id/status
func (h *Handlers) HandleStatus(c *gin.Context) {
	ticketID := c.Param("ticket_id")

	analysis, status, err := h.tracker.GetStatus(c.Request.Context(), ticketID)
	if err != nil {
		h.logger.Printf("api: status for ticket %s failed: %v", ticketID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analysis": analysis,
		"status":   status,
	})
}

// HandleHistory returns every persisted state version of a ticket, oldest
// first.
// GET /api/v1/sla/tickets/:ticket_id/history
func (h *Handlers) HandleHistory(c *gin.Context) {
	ticketID := c.Param("ticket_id")

	history, err := h.tracker.History(c.Request.Context(), ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no tracker state for ticket " + ticketID})
			return
		}
		h.logger.Printf("api: history for ticket %s failed: %v", ticketID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ticket_id": ticketID,
		"versions":  history,
	})
}

// HandleDueObligations lists the obligations that are due and unfired across
// all open tickets. Read-only; nothing is marked fired.
// GET /api/v1/sla/obligations/due
func (h *Handlers) HandleDueObligations(c *gin.Context) {
	ctx := c.Request.Context()
	now := h.now()

	ids, err := h.repo.OpenTicketIDs(ctx)
	if err != nil {
		h.logger.Printf("api: listing open tickets failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list open tickets"})
		return
	}

	due := make([]models.Obligation, 0)
	for _, ticketID := range ids {
		state, err := h.repo.Latest(ctx, ticketID)
		if err != nil {
			continue
		}
		ticketDue, err := obligation.DueNow(ctx, h.store, obligation.Derive(state), now)
		if err != nil {
			h.logger.Printf("api: deriving obligations for ticket %s failed: %v", ticketID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to derive obligations"})
			return
		}
		due = append(due, ticketDue...)
	}

	c.JSON(http.StatusOK, gin.H{"obligations": due, "count": len(due)})
}

// HandleAckObligation marks an obligation fired by identity. The first ack
// wins; repeats report already_fired.
// POST /api/v1/sla/obligations/:id/ack
func (h *Handlers) HandleAckObligation(c *gin.Context) {
	id := c.Param("id")

	won, err := h.store.MarkFired(c.Request.Context(), id)
	if err != nil {
		h.logger.Printf("api: acking obligation %s failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ack obligation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "fired": true, "already_fired": !won})
}

// HandleGetCatalog returns the active catalog snapshot.
// GET /api/v1/sla/catalog
func (h *Handlers) HandleGetCatalog(c *gin.Context) {
	snap := h.catalog.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"version":   snap.Version,
		"policies":  snap.Policies,
		"calendars": snap.Calendars(),
	})
}

// HandlePutCatalog validates and atomically activates a new catalog. In-flight
// evaluations keep the snapshot they started with.
// PUT /api/v1/sla/catalog
func (h *Handlers) HandlePutCatalog(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	snap, err := policy.ParseDocument(body)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "catalog rejected: " + err.Error()})
		return
	}

	h.catalog.Replace(snap)
	h.logger.Printf("api: catalog replaced, version %s, %d policies, %d calendars",
		snap.Version, len(snap.Policies), len(snap.Calendars()))
	c.JSON(http.StatusOK, gin.H{"version": snap.Version})
}

// HandleGetPolicies returns the policies of the active snapshot.
// GET /api/v1/sla/policies
func (h *Handlers) HandleGetPolicies(c *gin.Context) {
	snap := h.catalog.Snapshot()
	c.JSON(http.StatusOK, gin.H{"version": snap.Version, "policies": snap.Policies})
}

// HandleGetCalendars returns the calendars of the active snapshot.
// GET /api/v1/sla/calendars
func (h *Handlers) HandleGetCalendars(c *gin.Context) {
	snap := h.catalog.Snapshot()
	c.JSON(http.StatusOK, gin.H{"version": snap.Version, "calendars": snap.Calendars()})
}

// HandlePutPolicies replaces the policy set, keeping the current calendars.
// The whole snapshot is rebuilt and validated before activation.
// PUT /api/v1/sla/policies
func (h *Handlers) HandlePutPolicies(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	var payload struct {
		Policies []models.Policy `json:"policies" yaml:"policies"`
	}
	if err := yaml.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid policies payload: " + err.Error()})
		return
	}

	current := h.catalog.Snapshot()
	snap, err := policy.NewSnapshot("", current.Calendars(), payload.Policies)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "policies rejected: " + err.Error()})
		return
	}

	h.catalog.Replace(snap)
	h.logger.Printf("api: policies replaced, snapshot %s, %d policies", snap.Version, len(snap.Policies))
	c.JSON(http.StatusOK, gin.H{"version": snap.Version})
}

// HandlePutCalendars replaces the calendar set, keeping the current policies.
// Rejected if any policy references a calendar that would disappear.
// PUT /api/v1/sla/calendars
func (h *Handlers) HandlePutCalendars(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	var payload struct {
		Calendars []models.Calendar `json:"calendars" yaml:"calendars"`
	}
	if err := yaml.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid calendars payload: " + err.Error()})
		return
	}

	current := h.catalog.Snapshot()
	snap, err := policy.NewSnapshot("", payload.Calendars, current.Policies)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "calendars rejected: " + err.Error()})
		return
	}

	h.catalog.Replace(snap)
	h.logger.Printf("api: calendars replaced, snapshot %s, %d calendars", snap.Version, len(snap.Calendars()))
	c.JSON(http.StatusOK, gin.H{"version": snap.Version})
}

// HandleHealth is the liveness probe.
// GET /healthz
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
