// Package api exposes the dashboard and the credential-management HTTP
// surface on a gin router.
package api

import (
	"embed"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/bleedingdev/usagedeck/internal/cache"
	"github.com/bleedingdev/usagedeck/internal/keystore"
	"github.com/bleedingdev/usagedeck/internal/usage"
)

//go:embed web/*
var webAssets embed.FS

// Server bundles the handlers' dependencies. It is constructed in main and
// injected here so tests can wire their own store and cache.
type Server struct {
	store          keystore.Store
	fetcher        *usage.Client
	cache          *cache.Controller
	exportPassword string
}

// NewServer creates the handler set.
func NewServer(store keystore.Store, fetcher *usage.Client, ctrl *cache.Controller, exportPassword string) *Server {
	return &Server{
		store:          store,
		fetcher:        fetcher,
		cache:          ctrl,
		exportPassword: exportPassword,
	}
}

// RegisterRoutes attaches all routes to the router.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/", s.serveIndex)
	router.GET("/static/*filepath", s.serveStatic)

	api := router.Group("/api")
	{
		api.GET("/data", s.getData)
		api.GET("/keys", s.listKeys)
		api.POST("/keys", s.addKeys)
		api.POST("/keys/batch-delete", s.batchDeleteKeys)
		api.POST("/keys/export", s.exportKeys)
		api.DELETE("/keys/:id", s.deleteKey)
		api.POST("/keys/:id/refresh", s.refreshKey)
	}

	router.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not Found")
	})

	log.Info("HTTP routes registered")
}

func (s *Server) serveIndex(c *gin.Context) {
	content, err := webAssets.ReadFile("web/index.html")
	if err != nil {
		log.WithError(err).Error("Failed to read embedded dashboard")
		c.String(http.StatusInternalServerError, "dashboard unavailable")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", content)
}

func (s *Server) serveStatic(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("filepath"), "/")
	content, err := webAssets.ReadFile("web/" + path)
	if err != nil {
		c.String(http.StatusNotFound, "Not Found")
		return
	}

	contentType := "text/plain"
	switch {
	case strings.HasSuffix(path, ".js"):
		contentType = "application/javascript"
	case strings.HasSuffix(path, ".css"):
		contentType = "text/css"
	case strings.HasSuffix(path, ".html"):
		contentType = "text/html; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, content)
}
