package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nqhuy/iot-device-service/internal/store"
)

// RegisterActionRoutes registers the paginated action-log view.
func RegisterActionRoutes(r gin.IRoutes, st store.Store) {
	r.GET("/devices/:id/actions", func(c *gin.Context) {
		page, err := st.ListActions(c.Request.Context(), listParams(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "action query failed"})
			return
		}
		c.JSON(http.StatusOK, page)
	})
}
