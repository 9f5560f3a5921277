// Package server exposes a Simulation over HTTP and pushes its standings to
// websocket clients.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	triathlon "github.com/LuisLeon1705/Triatlon-Ujap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Server is the HTTP front end of a Simulation.
type Server struct {
	router *gin.Engine
	sim    *triathlon.Simulation
	hub    *Hub
	logger *zap.Logger
}

// New creates a Server for sim and registers its websocket hub as a
// listener of the simulation.
func New(sim *triathlon.Simulation, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		router: gin.New(),
		sim:    sim,
		hub:    NewHub(logger.Named("hub")),
		logger: logger,
	}
	sim.AddListener(s.hub)

	s.registerRoutes()
	return s
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.router.Use(gin.Recovery(), s.requestLogger(), corsMiddleware())

	api := s.router.Group("/api")
	{
		api.GET("/standings", s.handleGetStandings)
		api.GET("/ws", s.handleWebSocket)

		// Simulation control
		api.POST("/simulation/start", s.handleStart)
		api.POST("/simulation/reset", s.handleReset)
		api.GET("/mode", s.handleGetMode)
		api.PUT("/mode", s.handleSetMode)

		// Registry
		api.GET("/participants", s.handleListParticipants)
		api.POST("/participants", s.handleRegister)
		api.DELETE("/participants", s.handleClearParticipants)
		api.PUT("/participants/:id", s.handleUpdate)
		api.DELETE("/participants/:id", s.handleDelete)
		api.PUT("/participants/:id/participation", s.handleSetParticipation)
		api.POST("/participants/:id/disqualify", s.handleDisqualify)

		// Pending edit slot
		api.GET("/pending-edit", s.handleGetPendingEdit)
		api.PUT("/pending-edit", s.handleBeginEdit)
		api.DELETE("/pending-edit", s.handleCancelEdit)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close disconnects all websocket clients.
func (s *Server) Close() {
	s.hub.Close()
}

// Middleware

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		s.logger.Debug("request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// corsMiddleware allows the browser front end to be served elsewhere.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Request types

type startRequest struct {
	StartDateTime string `json:"startDateTime"`
	Mode          string `json:"mode"`
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type participationRequest struct {
	WillParticipate *bool `json:"willParticipate" binding:"required"`
}

type editRequest struct {
	ID string `json:"id" binding:"required"`
}

// Handlers

func (s *Server) handleGetStandings(c *gin.Context) {
	st, err := s.sim.CurrentStandings(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleWebSocket(c *gin.Context) {
	st, err := s.sim.CurrentStandings(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	initial, err := json.Marshal(st)
	if err != nil {
		s.writeError(c, err)
		return
	}
	err = s.hub.Serve(c.Writer, c.Request, initial)
	switch {
	case errors.Is(err, ErrHubClosed) && !c.Writer.Written():
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
	}
}

func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	start, err := triathlon.ParseStartTime(req.StartDateTime, s.sim.Location())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.sim.Start(c.Request.Context(), start, triathlon.Mode(req.Mode)); err != nil {
		s.writeError(c, err)
		return
	}
	s.handleGetStandings(c)
}

func (s *Server) handleReset(c *gin.Context) {
	if err := s.sim.Reset(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	s.handleGetStandings(c)
}

func (s *Server) handleDisqualify(c *gin.Context) {
	if err := s.sim.Disqualify(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetMode(c *gin.Context) {
	mode, err := s.sim.Mode(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": mode})
}

func (s *Server) handleSetMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode is required"})
		return
	}
	if err := s.sim.SetMode(c.Request.Context(), triathlon.Mode(req.Mode)); err != nil {
		s.writeError(c, err)
		return
	}
	s.handleGetMode(c)
}

func (s *Server) handleListParticipants(c *gin.Context) {
	participants, err := s.sim.Participants(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, participants)
}

func (s *Server) handleRegister(c *gin.Context) {
	var req triathlon.Registration
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	p, err := s.sim.RegisterParticipant(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleClearParticipants(c *gin.Context) {
	if err := s.sim.ClearParticipants(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUpdate(c *gin.Context) {
	var req triathlon.Registration
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	p, err := s.sim.UpdateParticipant(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.sim.DeleteParticipant(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSetParticipation(c *gin.Context) {
	var req participationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "willParticipate is required"})
		return
	}
	if err := s.sim.SetParticipation(c.Request.Context(), c.Param("id"), *req.WillParticipate); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetPendingEdit(c *gin.Context) {
	p, err := s.sim.PendingEdit(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if p == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleBeginEdit(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}
	p, err := s.sim.BeginEdit(c.Request.Context(), req.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleCancelEdit(c *gin.Context) {
	if err := s.sim.CancelEdit(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError maps the simulation's error classes to HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, triathlon.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, triathlon.ErrNotFound):
		status = http.StatusNotFound
	default:
		s.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
