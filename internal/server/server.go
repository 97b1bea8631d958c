// Package server exposes the operator control surface over HTTP: controller
// roster management, round lifecycle, and tally reads.
package server

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/openballot/votectl/internal/observability"
	"github.com/openballot/votectl/internal/registry"
	"github.com/openballot/votectl/internal/session"
)

type Server struct {
	ID      string
	Addr    string
	Started time.Time

	coord  *session.Coordinator
	reg    *registry.Registry
	router *gin.Engine
}

func New(id, addr string, corsOrigins []string, coord *session.Coordinator, reg *registry.Registry) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:      id,
		Addr:    addr,
		Started: time.Now(),
		coord:   coord,
		reg:     reg,
		router:  r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Serve() error {
	return s.router.Run(s.Addr)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost", "http://127.0.0.1"}
	}
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
