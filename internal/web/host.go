package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/wall-heater/internal/host"
	"github.com/sweeney/wall-heater/internal/logger"
	"github.com/sweeney/wall-heater/internal/logic"
	"github.com/sweeney/wall-heater/internal/status"
)

// HostController is the part of the control loop the HTTP surface needs.
type HostController interface {
	Snapshot() status.HostSnapshot
	Submit(host.Event) bool
}

type hostHandler struct {
	ctrl HostController
	log  *logger.Logger
}

// NewHostRouter builds the controller process router.
func NewHostRouter(ctrl HostController, gatherer prometheus.Gatherer, log *logger.Logger) *gin.Engine {
	h := &hostHandler{ctrl: ctrl, log: log}
	router := newEngine(log, gatherer)

	router.GET("/", h.index)
	router.GET("/index.html", h.index)

	api := router.Group("/api")
	{
		api.GET("/status", h.status)
		api.GET("/settings", h.settings)
		api.POST("/settings", h.saveSettings)
	}
	return router
}

func (h *hostHandler) index(c *gin.Context) {
	renderPage(c, hostTmpl, h.ctrl.Snapshot())
}

func (h *hostHandler) status(c *gin.Context) {
	c.JSON(http.StatusOK, status.NewHostJSON(h.ctrl.Snapshot()))
}

func (h *hostHandler) settings(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Snapshot().Config)
}

// saveSettings takes a partial update: fields missing from the body keep
// their current values. The loop does the real merge; the one here rejects
// bodies that are invalid against the current settings.
func (h *hostHandler) saveSettings(c *gin.Context) {
	var patch logic.ControlPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	cfg := patch.Apply(h.ctrl.Snapshot().Config)
	if err := cfg.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	h.log.Infow("settings_update_requested",
		"day_target", cfg.DayTarget, "night_target", cfg.NightTarget, "hysteresis", cfg.Hysteresis)
	respondQueued(c, h.ctrl.Submit(host.ConfigPatch{Patch: patch}), "settings")
}
