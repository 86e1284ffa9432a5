package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nqhuy/iot-device-service/internal/models"
	"github.com/nqhuy/iot-device-service/internal/store"
)

// RegisterSensorRoutes registers the sensor read models: latest-per-type,
// raw time series and the grouped paginated view.
func RegisterSensorRoutes(r gin.IRoutes, st store.Store) {
	r.GET("/devices/:id/last", func(c *gin.Context) {
		deviceID := c.Param("id")
		latest, err := st.LatestReadings(c.Request.Context(), deviceID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "latest query failed"})
			return
		}

		resp := gin.H{"device_id": deviceID}
		var newest time.Time
		for sensorType, v := range latest {
			resp[sensorType] = gin.H{"value": v.Value, "unit": v.Unit}
			if v.Timestamp.After(newest) {
				newest = v.Timestamp
			}
		}
		if !newest.IsZero() {
			resp["timestamp"] = newest
		}
		c.JSON(http.StatusOK, resp)
	})

	r.GET("/devices/:id/series", func(c *gin.Context) {
		deviceID := c.Param("id")
		from := c.DefaultQuery("from", "1hour")
		sensor := c.DefaultQuery("sensor", "all")
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5000"))
		if limit < 1 {
			limit = 5000
		}

		since := store.SeriesCutoff(from, time.Now())
		data, err := st.Series(c.Request.Context(), deviceID, since, sensor, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "series query failed"})
			return
		}
		if data == nil {
			data = []models.SensorReading{}
		}
		c.JSON(http.StatusOK, gin.H{
			"device_id": deviceID,
			"sensor":    sensor,
			"period":    from,
			"data":      data,
		})
	})

	r.GET("/devices/:id/sensors", func(c *gin.Context) {
		page, err := st.ListSensors(c.Request.Context(), listParams(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sensor query failed"})
			return
		}
		c.JSON(http.StatusOK, page)
	})
}
