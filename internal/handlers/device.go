package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nqhuy/iot-device-service/internal/command"
	"github.com/nqhuy/iot-device-service/internal/models"
	"github.com/nqhuy/iot-device-service/internal/store"
)

// RegisterDeviceRoutes registers the device summary, health and command
// endpoints.
//
// POST /devices/:id/cmd/:target publishes a command and answers with an
// acceptance receipt; the terminal outcome lands in the action log later.
func RegisterDeviceRoutes(r gin.IRoutes, st store.Store, d *command.Dispatcher, mqttConnected func() bool) {
	r.GET("/health", func(c *gin.Context) {
		mqttState := "disconnected"
		if mqttConnected() {
			mqttState = "connected"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"mqtt":      mqttState,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	r.GET("/devices/:id", func(c *gin.Context) {
		summary, err := st.DeviceSummary(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "summary query failed"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	r.POST("/devices/:id/cmd/:target", func(c *gin.Context) {
		var req models.CommandRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Value == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
			return
		}

		receipt, err := d.Dispatch(c.Request.Context(),
			c.Param("id"), c.Param("target"), req.Value, req.IssuedBy)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "MQTT publish failed",
				"details": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, receipt)
	})
}

// listParams reads the shared pagination/filter query surface.
func listParams(c *gin.Context) store.ListParams {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit < 1 {
		limit = 10
	}
	return store.ListParams{
		DeviceID: c.Param("id"),
		Page:     page,
		Limit:    limit,
		Search:   c.Query("search"),
		Filter:   c.DefaultQuery("filter", "All"),
		OrderBy:  c.DefaultQuery("orderBy", "timestamp"),
		OrderDir: c.DefaultQuery("orderDir", "DESC"),
		Date:     c.Query("date"),
	}
}
