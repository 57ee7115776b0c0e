package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig controls which auxiliary endpoints are mounted.
type RouterConfig struct {
	MetricsEnabled bool
	MetricsPath    string
}

// NewRouter builds the gin engine with all SLA routes mounted.
func NewRouter(h *Handlers, rc RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.HandleHealth)
	if rc.MetricsEnabled {
		path := rc.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/api/v1/sla")
	{
		v1.POST("/events", h.HandleEvent)
		v1.GET("/tickets/:ticket_id/status", h.HandleStatus)
		v1.GET("/tickets/:ticket_id/history", h.HandleHistory)
		v1.GET("/obligations/due", h.HandleDueObligations)
		v1.POST("/obligations/:id/ack", h.HandleAckObligation)
		v1.GET("/catalog", h.HandleGetCatalog)
		v1.PUT("/catalog", h.HandlePutCatalog)
		v1.GET("/policies", h.HandleGetPolicies)
		v1.PUT("/policies", h.HandlePutPolicies)
		v1.GET("/calendars", h.HandleGetCalendars)
		v1.PUT("/calendars", h.HandlePutCalendars)
	}

	return r
}
