package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/triago/pkg/services"
)

// SubmitRequest is the HTTP request body for POST /api/v1/requests.
type SubmitRequest struct {
	UserID            string            `json:"user_id"`
	SessionID         string            `json:"session_id,omitempty"`
	QueryText         string            `json:"query_text"`
	AdditionalContext map[string]string `json:"additional_context,omitempty"`
}

// SubmitResponse is the HTTP response body for a successful submission.
type SubmitResponse struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// CompleteRequest is the HTTP request body for the human completion call.
type CompleteRequest struct {
	SatisfactionRating float64 `json:"satisfaction_rating"`
	Escalated          bool    `json:"escalated"`
}

// submitHandler handles POST /api/v1/requests.
func (s *Server) submitHandler(c *gin.Context) {
	var body SubmitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	req, err := s.requests.Submit(c.Request.Context(), services.SubmitInput{
		UserID:            body.UserID,
		SessionID:         body.SessionID,
		QueryText:         body.QueryText,
		AdditionalContext: body.AdditionalContext,
	})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SubmitResponse{
		RequestID: req.RequestID,
		SessionID: req.SessionID,
		Status:    string(req.WorkflowStatus),
	})
}

// statusHandler handles GET /api/v1/requests/:id.
func (s *Server) statusHandler(c *gin.Context) {
	view, err := s.requests.Status(c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// cancelHandler handles POST /api/v1/requests/:id/cancel.
func (s *Server) cancelHandler(c *gin.Context) {
	if err := s.requests.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// completeHandler handles POST /api/v1/requests/:id/complete.
func (s *Server) completeHandler(c *gin.Context) {
	var body CompleteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	err := s.requests.HumanComplete(c.Request.Context(), c.Param("id"), body.SatisfactionRating, body.Escalated)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}
