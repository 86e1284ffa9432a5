// Package httpserver wires the JSON API. All routes live under /api; unknown
// routes fall through to gin's 404 and panics to Recovery's 500.
package httpserver

import (
	"github.com/gin-gonic/gin"

	"github.com/nqhuy/iot-device-service/internal/command"
	"github.com/nqhuy/iot-device-service/internal/handlers"
	"github.com/nqhuy/iot-device-service/internal/store"
)

// NewRouter builds the engine over the selected store and dispatcher.
// mqttConnected feeds the health endpoint.
func NewRouter(st store.Store, d *command.Dispatcher, mqttConnected func() bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	handlers.RegisterDeviceRoutes(api, st, d, mqttConnected)
	handlers.RegisterSensorRoutes(api, st)
	handlers.RegisterActionRoutes(api, st)

	return r
}
