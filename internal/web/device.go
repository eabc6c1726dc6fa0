package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/wall-heater/internal/config"
	"github.com/sweeney/wall-heater/internal/device"
	"github.com/sweeney/wall-heater/internal/logger"
	"github.com/sweeney/wall-heater/internal/status"
)

// DeviceController is the part of the relay loop the HTTP surface needs.
type DeviceController interface {
	Snapshot() status.DeviceSnapshot
	Submit(device.Event) bool
}

// brokerRequest is the body of POST /api/mqtt/save.
type brokerRequest struct {
	Server   string `json:"server" binding:"required"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type deviceHandler struct {
	ctrl DeviceController
	log  *logger.Logger
}

// NewDeviceRouter builds the relay process router. Every action is queued
// for the control loop; nothing here touches the relay or the session.
func NewDeviceRouter(ctrl DeviceController, gatherer prometheus.Gatherer, log *logger.Logger) *gin.Engine {
	h := &deviceHandler{ctrl: ctrl, log: log}
	router := newEngine(log, gatherer)

	router.GET("/", h.index)
	router.GET("/index.html", h.index)

	api := router.Group("/api")
	{
		api.GET("/status", h.status)
		api.POST("/toggle", h.toggle)
		api.POST("/mqtt/reconnect", h.reconnect)
		api.POST("/mqtt/save", h.saveBroker)
	}
	return router
}

func (h *deviceHandler) index(c *gin.Context) {
	renderPage(c, deviceTmpl, h.ctrl.Snapshot())
}

func (h *deviceHandler) status(c *gin.Context) {
	c.JSON(http.StatusOK, status.NewDeviceJSON(h.ctrl.Snapshot()))
}

func (h *deviceHandler) toggle(c *gin.Context) {
	respondQueued(c, h.ctrl.Submit(device.ToggleRequest{}), "toggle")
}

func (h *deviceHandler) reconnect(c *gin.Context) {
	respondQueued(c, h.ctrl.Submit(device.ResetRequest{}), "reconnect")
}

func (h *deviceHandler) saveBroker(c *gin.Context) {
	var req brokerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Port == 0 {
		req.Port = config.DefaultBrokerPort
	}
	b := config.BrokerSettings{
		Server:   req.Server,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
	}
	if err := b.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	h.log.Infow("broker_update_requested", "broker", b.URL())
	respondQueued(c, h.ctrl.Submit(device.BrokerUpdate{Broker: b}), "save")
}
