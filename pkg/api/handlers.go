// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

type lightRequest struct {
	On *bool `json:"on" binding:"required"`
}

type brightnessRequest struct {
	Value *int `json:"value" binding:"required"`
}

type anglesRequest struct {
	Open   *int `json:"open"`
	Closed *int `json:"closed"`
}

type focuserMoveRequest struct {
	// Target is an absolute position. When absent, Ticks and Direction
	// describe a relative move.
	Target    *uint32 `json:"target"`
	Ticks     uint32  `json:"ticks"`
	Direction string  `json:"direction" binding:"omitempty,oneof=in out"`
}

type focuserSyncRequest struct {
	Position *uint32 `json:"position" binding:"required"`
}

type compensationRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type opResponse struct {
	State flatcap.OpState `json:"state"`
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.dev.Snapshot())
}

func (s *Server) getStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, s.dev.Statistics().Snapshot())
}

func (s *Server) postPark(c *gin.Context) {
	state, err := s.dev.Park(c.Request.Context())
	s.respondOp(c, state, err)
}

func (s *Server) postUnpark(c *gin.Context) {
	state, err := s.dev.Unpark(c.Request.Context())
	s.respondOp(c, state, err)
}

func (s *Server) postLight(c *gin.Context) {
	var req lightRequest
	if !bind(c, &req) {
		return
	}
	s.respond(c, s.dev.EnableLight(c.Request.Context(), *req.On))
}

func (s *Server) postBrightness(c *gin.Context) {
	var req brightnessRequest
	if !bind(c, &req) {
		return
	}
	s.respond(c, s.dev.SetBrightness(c.Request.Context(), *req.Value))
}

func (s *Server) postAngles(c *gin.Context) {
	var req anglesRequest
	if !bind(c, &req) {
		return
	}
	if req.Open == nil && req.Closed == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open or closed is required"})
		return
	}

	ctx := c.Request.Context()
	if req.Closed != nil {
		if err := s.dev.SetClosedAngle(ctx, *req.Closed); err != nil {
			s.respond(c, err)
			return
		}
	}
	if req.Open != nil {
		if err := s.dev.SetOpenAngle(ctx, *req.Open); err != nil {
			s.respond(c, err)
			return
		}
	}
	s.respond(c, nil)
}

func (s *Server) postFocuserMove(c *gin.Context) {
	var req focuserMoveRequest
	if !bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if req.Target != nil {
		state, err := s.dev.MoveFocuser(ctx, *req.Target)
		s.respondOp(c, state, err)
		return
	}
	if req.Direction == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target or direction is required"})
		return
	}

	dir := flatcap.FocusOutward
	if req.Direction == "in" {
		dir = flatcap.FocusInward
	}
	state, err := s.dev.MoveFocuserRelative(ctx, dir, req.Ticks)
	s.respondOp(c, state, err)
}

func (s *Server) postFocuserSync(c *gin.Context) {
	var req focuserSyncRequest
	if !bind(c, &req) {
		return
	}
	s.respond(c, s.dev.SyncFocuser(c.Request.Context(), *req.Position))
}

func (s *Server) postFocuserAbort(c *gin.Context) {
	s.respond(c, s.dev.AbortFocuser(c.Request.Context()))
}

func (s *Server) postFocuserCompensation(c *gin.Context) {
	var req compensationRequest
	if !bind(c, &req) {
		return
	}
	s.respond(c, s.dev.SetTemperatureCompensation(c.Request.Context(), *req.Enabled))
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (s *Server) respond(c *gin.Context, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.dev.Snapshot())
}

func (s *Server) respondOp(c *gin.Context, state flatcap.OpState, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, opResponse{State: state})
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.Request.URL.Path, "err", err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// statusCode maps device errors onto HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, flatcap.ErrOutOfRange), errors.Is(err, flatcap.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, flatcap.ErrPolicy):
		return http.StatusConflict
	case errors.Is(err, flatcap.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, flatcap.ErrTransport):
		return http.StatusGatewayTimeout
	case errors.Is(err, flatcap.ErrParse), errors.Is(err, flatcap.ErrProtocolMismatch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
