package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	healthStatusOK        = "ok"
	healthStatusUnhealthy = "unhealthy"
)

type HealthChecker interface {
	Health() error
}

// RegisterRoutes mounts the API. Every checker must be healthy for /healthz
// to answer 200.
func RegisterRoutes(router *gin.Engine, handler *Handler, checkers ...HealthChecker) {
	router.GET("/products", handler.GetProducts)
	router.POST("/products", handler.CreateProduct)
	router.PUT("/products", handler.UpdateProduct)
	router.DELETE("/products", handler.DeleteProduct)
	router.POST("/products/import", handler.ImportProducts)

	catalog := router.Group("/catalog")
	catalog.GET("/categories", handler.ListCategories)
	catalog.GET("/names", handler.ListNames)
	catalog.GET("/history", handler.GetHistory)

	router.GET("/dashboard/summary", handler.GetDashboard)
	router.GET("/forecast", handler.GetForecast)
	router.POST("/forecast", handler.RefreshForecast)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		for _, checker := range checkers {
			if err := checker.Health(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": healthStatusUnhealthy})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": healthStatusOK})
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
