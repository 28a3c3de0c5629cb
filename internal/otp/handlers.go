package otp

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for OTP challenges.
type Handler struct {
	service *Service
}

// NewHandler creates a new OTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up OTP routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/otp/send", h.Send)
	r.POST("/otp/verify", h.Verify)
}

// SendRequest is the request body for POST /v1/otp/send.
type SendRequest struct {
	Destination string `json:"destination" binding:"required"`
}

// Send handles POST /v1/otp/send
func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "destination is required and the body must be valid JSON",
		})
		return
	}

	result, err := h.service.Issue(c.Request.Context(), req.Destination)
	if err != nil {
		var rl *RateLimitedError
		switch {
		case errors.As(err, &rl):
			retryAfter := int(math.Ceil(rl.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"message":     "A code was sent recently, wait before requesting another",
				"retry_after": retryAfter,
			})
		case errors.Is(err, ErrInvalidDestination):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "destination must be a valid phone number",
			})
		case errors.Is(err, ErrNotifyFailed):
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "delivery_failed",
				"message": "Could not deliver the verification code, try again",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to issue challenge",
			})
		}
		return
	}

	resp := gin.H{"challenge_id": result.ChallengeID}
	if result.DevCode != "" {
		resp["dev_code"] = result.DevCode
	}
	c.JSON(http.StatusOK, resp)
}

// VerifyRequest is the request body for POST /v1/otp/verify.
type VerifyRequest struct {
	ChallengeID string `json:"challenge_id" binding:"required"`
	Code        string `json:"code" binding:"required"`
}

// Verify handles POST /v1/otp/verify
//
// Every rejection is 200 {"valid": false}; the response never says whether
// the id existed, expired, or the code was merely wrong.
func (h *Handler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "challenge_id and code are required",
		})
		return
	}

	valid, err := h.service.Verify(c.Request.Context(), req.ChallengeID, req.Code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to verify challenge",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": valid})
}
