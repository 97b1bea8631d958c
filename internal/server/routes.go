package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openballot/votectl/internal/ledger"
	"github.com/openballot/votectl/internal/registry"
	"github.com/openballot/votectl/internal/session"
)

type registerRequest struct {
	ID string `json:"id" binding:"required"`
}

type startRoundRequest struct {
	Ballot          string `json:"ballot" binding:"required"`
	DeadlineSeconds int    `json:"deadline_seconds"`
}

type controllerView struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	LastSeq  uint32 `json:"last_seq"`
	LastSeen string `json:"last_seen,omitempty"`
}

type roundView struct {
	ID           uint32 `json:"id"`
	State        string `json:"state"`
	Ballot       string `json:"ballot"`
	OpenedAt     string `json:"opened_at"`
	Deadline     string `json:"deadline,omitempty"`
	ClosedAt     string `json:"closed_at,omitempty"`
	CloseTrigger string `json:"close_trigger,omitempty"`
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Started).String(),
			"service": s.ID,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   true,
			"uptime":  time.Since(s.Started).String(),
			"service": s.ID,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/controllers", s.listControllers)
	s.router.POST("/controllers", s.registerController)
	s.router.DELETE("/controllers/:id", s.deregisterController)

	s.router.POST("/rounds", s.startRound)
	s.router.GET("/rounds/current", s.currentRound)
	s.router.POST("/rounds/current/close", s.forceClose)
	s.router.POST("/rounds/current/archive", s.archive)
	s.router.GET("/rounds/:id/tally", s.tally)
}

func (s *Server) listControllers(c *gin.Context) {
	ctls := s.reg.List()
	out := make([]controllerView, 0, len(ctls))
	for _, ctl := range ctls {
		view := controllerView{
			ID:      ctl.ID,
			State:   ctl.State.String(),
			LastSeq: ctl.LastSeq,
		}
		if !ctl.LastSeen.IsZero() {
			view.LastSeen = ctl.LastSeen.UTC().Format(time.RFC3339)
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"controllers": out})
}

func (s *Server) registerController(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.reg.Register(req.ID); err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, registry.ErrAlreadyRegistered):
			status = http.StatusConflict
		case errors.Is(err, registry.ErrFull):
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": req.ID})
}

func (s *Server) deregisterController(c *gin.Context) {
	if err := s.reg.Deregister(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
}

func (s *Server) startRound(c *gin.Context) {
	var req startRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deadline := time.Duration(req.DeadlineSeconds) * time.Second
	roundID, err := s.coord.StartRound([]byte(req.Ballot), deadline, time.Now())
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, session.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"round_id": roundID})
}

func (s *Server) currentRound(c *gin.Context) {
	snap := s.coord.Status()
	resp := gin.H{
		"state":           snap.State.String(),
		"votes":           snap.Votes,
		"expired":         snap.Expired,
		"pending_prompts": snap.PendingPrompts,
	}
	if snap.Round != nil {
		resp["round"] = viewOfRound(snap.Round)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) forceClose(c *gin.Context) {
	if err := s.coord.ForceClose(time.Now()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.coord.Status().State.String()})
}

func (s *Server) archive(c *gin.Context) {
	if err := s.coord.Archive(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.coord.Status().State.String()})
}

func (s *Server) tally(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid round id"})
		return
	}
	counts, err := s.coord.Tally(uint32(id))
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, ledger.ErrWrongRound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	total := 0
	byChoice := make(map[string]int, len(counts))
	for choice, n := range counts {
		byChoice[strconv.Itoa(int(choice))] = n
		total += n
	}
	c.JSON(http.StatusOK, gin.H{
		"round_id":   id,
		"counts":     byChoice,
		"total":      total,
		"non_voting": s.coord.Status().Expired,
	})
}

func viewOfRound(r *session.RoundInfo) roundView {
	view := roundView{
		ID:           r.ID,
		State:        r.State.String(),
		Ballot:       string(r.Ballot),
		OpenedAt:     r.OpenedAt.UTC().Format(time.RFC3339),
		CloseTrigger: r.CloseTrigger,
	}
	if !r.Deadline.IsZero() {
		view.Deadline = r.Deadline.UTC().Format(time.RFC3339)
	}
	if !r.ClosedAt.IsZero() {
		view.ClosedAt = r.ClosedAt.UTC().Format(time.RFC3339)
	}
	return view
}
