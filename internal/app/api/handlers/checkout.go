package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/glasswing-io/tiergate/internal/app/service/checkout"
	subsvc "github.com/glasswing-io/tiergate/internal/app/service/subscription"
	"github.com/glasswing-io/tiergate/internal/models"
	"github.com/glasswing-io/tiergate/pkg/response"
)

type InitiateCheckoutRequest struct {
	Email     string `json:"email" binding:"required,email"`
	ProductID string `json:"product_id" binding:"required"`
}

type CheckoutSessionResponse struct {
	SessionID         string `json:"session_id"`
	ProviderSessionID string `json:"provider_session_id"`
	CheckoutURL       string `json:"checkout_url"`
	Status            string `json:"status"`
	RequestedTier     string `json:"requested_tier"`
}

// @Summary      Initiate Checkout
// @Description  Creates (or reuses a fresh pending) checkout session for the given user and product. The user row is created on first contact.
// @Tags         Checkout
// @Accept       json
// @Produce      json
// @Param        request  body      InitiateCheckoutRequest  true  "checkout request"
// @Success      200      {object}  response.APIResponse[CheckoutSessionResponse]
// @Failure      400      {object}  response.APIResponse[string]
// @Failure      500      {object}  response.APIResponse[string]
// @Router       /api/v1/checkout [post]
func ApiInitiateCheckout(sessions *checkout.Service, subs *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InitiateCheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		user, err := subs.EnsureUser(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.ErrorT(response.APIResponseCodeError, err.Error()))
			return
		}

		session, err := sessions.InitiateCheckout(c.Request.Context(), user, req.ProductID)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		c.JSON(http.StatusOK, response.OKT(CheckoutSessionResponse{
			SessionID:         session.ID,
			ProviderSessionID: session.ProviderSessionID,
			CheckoutURL:       session.CheckoutURL,
			Status:            string(session.Status),
			RequestedTier:     string(session.RequestedTier),
		}))
	}
}

// @Summary      Get Checkout Session
// @Description  Returns the local checkout session by its internal id.
// @Tags         Checkout
// @Produce      json
// @Param        id   path      string  true  "session id"
// @Success      200  {object}  response.APIResponse[CheckoutSessionResponse]
// @Failure      404  {object}  response.APIResponse[string]
// @Router       /api/v1/sessions/{id} [get]
func ApiGetSession(sessions *checkout.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := sessions.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, response.ErrorT(response.APIResponseCodeNotFound, "session not found"))
				return
			}
			c.JSON(http.StatusInternalServerError, response.ErrorT(response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sessionResponse(session)))
	}
}

// @Summary      Get Checkout Session by Provider ID
// @Description  Returns the local checkout session keyed by the provider's session identifier.
// @Tags         Checkout
// @Produce      json
// @Param        provider_session_id  path      string  true  "provider session id"
// @Success      200                  {object}  response.APIResponse[CheckoutSessionResponse]
// @Failure      404                  {object}  response.APIResponse[string]
// @Router       /api/v1/checkout/{provider_session_id} [get]
func ApiGetSessionByProviderID(sessions *checkout.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := sessions.GetByProviderID(c.Request.Context(), c.Param("provider_session_id"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, response.ErrorT(response.APIResponseCodeNotFound, "session not found"))
				return
			}
			c.JSON(http.StatusInternalServerError, response.ErrorT(response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sessionResponse(session)))
	}
}

// @Summary      Resync Checkout Session
// @Description  Re-reads the session from the provider and reconciles the local row. Used when a completion webhook may have been missed.
// @Tags         Checkout
// @Produce      json
// @Param        provider_session_id  path      string  true  "provider session id"
// @Success      200                  {object}  response.APIResponse[CheckoutSessionResponse]
// @Failure      404                  {object}  response.APIResponse[string]
// @Router       /api/v1/sessions/{provider_session_id}/resync [post]
func ApiResyncSession(sessions *checkout.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := sessions.Resync(c.Request.Context(), c.Param("provider_session_id"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, response.ErrorT(response.APIResponseCodeNotFound, "session not found"))
				return
			}
			c.JSON(http.StatusInternalServerError, response.ErrorT(response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sessionResponse(session)))
	}
}

func sessionResponse(s *models.CheckoutSession) CheckoutSessionResponse {
	return CheckoutSessionResponse{
		SessionID:         s.ID,
		ProviderSessionID: s.ProviderSessionID,
		CheckoutURL:       s.CheckoutURL,
		Status:            string(s.Status),
		RequestedTier:     string(s.RequestedTier),
	}
}

func RegisterCheckoutRoutes(r gin.IRouter, sessions *checkout.Service, subs *subsvc.Service) {
	r.POST("/checkout", ApiInitiateCheckout(sessions, subs))
	r.GET("/checkout/:provider_session_id", ApiGetSessionByProviderID(sessions))
	r.GET("/sessions/:id", ApiGetSession(sessions))
	r.POST("/sessions/:provider_session_id/resync", ApiResyncSession(sessions))
}
