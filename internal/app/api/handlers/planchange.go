package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	subsvc "github.com/glasswing-io/tiergate/internal/app/service/subscription"
	"github.com/glasswing-io/tiergate/pkg/response"
)

type PlanChangeRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	ProductID string `json:"product_id" binding:"required"`
}

type UserIDRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type PlanChangeStatusResponse struct {
	Tier               string     `json:"tier"`
	SubscriptionStatus string     `json:"subscription_status"`
	TierExpiresAt      *time.Time `json:"tier_expires_at,omitempty"`
	PlanChangeStatus   string     `json:"plan_change_status,omitempty"`
	PendingTier        *string    `json:"pending_tier,omitempty"`
	PendingChangeType  *string    `json:"pending_change_type,omitempty"`
	EffectiveDate      *time.Time `json:"effective_date,omitempty"`
}

// @Summary      Change Plan
// @Description  Starts a plan change. Upgrades are charged immediately and stay pending until the payment webhook confirms; downgrades and frequency changes take effect at the end of the paid period.
// @Tags         PlanChange
// @Accept       json
// @Produce      json
// @Param        request  body      PlanChangeRequest  true  "plan change request"
// @Success      200      {object}  response.APIResponse[subsvc.PlanChangeResult]
// @Failure      400      {object}  response.APIResponse[string]
// @Failure      404      {object}  response.APIResponse[string]
// @Failure      409      {object}  response.APIResponse[string]
// @Router       /api/v1/plan-change [post]
func ApiChangePlan(subs *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PlanChangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		result, err := subs.ChangePlan(c.Request.Context(), req.UserID, req.ProductID)
		if err != nil {
			writePlanChangeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(result))
	}
}

// @Summary      Preview Plan Change
// @Description  Classifies a prospective plan change (upgrade, downgrade, frequency change) without touching the subscription.
// @Tags         PlanChange
// @Produce      json
// @Param        user_id     query     string  true  "user id"
// @Param        product_id  query     string  true  "target product id"
// @Success      200         {object}  response.APIResponse[subsvc.PlanChangeResult]
// @Failure      400         {object}  response.APIResponse[string]
// @Router       /api/v1/plan-change/preview [get]
func ApiPreviewPlanChange(subs *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		productID := c.Query("product_id")
		if userID == "" || productID == "" {
			c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, "user_id and product_id are required"))
			return
		}

		result, err := subs.PreviewChange(c.Request.Context(), userID, productID)
		if err != nil {
			writePlanChangeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(result))
	}
}

// @Summary      Cancel Pending Plan Change
// @Tags         PlanChange
// @Accept       json
// @Produce      json
// @Param        request  body      UserIDRequest  true  "user"
// @Success      200      {object}  response.APIResponse[string]
// @Failure      404      {object}  response.APIResponse[string]
// @Router       /api/v1/plan-change/cancel [post]
func ApiCancelPlanChange(subs *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UserIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err := subs.CancelPendingChange(c.Request.Context(), req.UserID); err != nil {
			writePlanChangeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT("cancelled"))
	}
}

// @Summary      Plan Change Status
// @Tags         PlanChange
// @Produce      json
// @Param        user_id  query     string  true  "user id"
// @Success      200      {object}  response.APIResponse[PlanChangeStatusResponse]
// @Failure      404      {object}  response.APIResponse[string]
// @Router       /api/v1/plan-change/status [get]
func ApiPlanChangeStatus(subs *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := subs.ChangeStatus(c.Request.Context(), c.Query("user_id"))
		if err != nil {
			writePlanChangeError(c, err)
			return
		}

		resp := PlanChangeStatusResponse{
			Tier:               string(user.Tier()),
			SubscriptionStatus: string(user.SubscriptionStatus),
			TierExpiresAt:      user.TierExpiresAt,
			EffectiveDate:      user.PendingTierEffectiveDate,
		}
		if user.PlanChangeStatus != "" {
			resp.PlanChangeStatus = string(user.PlanChangeStatus)
		}
		if user.PendingTier != nil {
			t := string(*user.PendingTier)
			resp.PendingTier = &t
		}
		if user.PendingChangeType != nil {
			ct := string(*user.PendingChangeType)
			resp.PendingChangeType = &ct
		}
		c.JSON(http.StatusOK, response.OKT(resp))
	}
}

// @Summary      Retry Payment
// @Description  Returns a provider-hosted link where the user can fix the payment method of a failed subscription.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        request  body      UserIDRequest  true  "user"
// @Success      200      {object}  response.APIResponse[map[string]string]
// @Failure      409      {object}  response.APIResponse[string]
// @Router       /api/v1/subscription/retry-payment [post]
func ApiRetryPayment(subs *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UserIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		link, err := subs.RetryPayment(c.Request.Context(), req.UserID)
		if err != nil {
			writePlanChangeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(map[string]string{"payment_update_url": link}))
	}
}

// @Summary      Cancel Subscription
// @Description  Asks the provider to stop the subscription at the next billing date. Entitlements move when the cancellation webhook lands.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        request  body      UserIDRequest  true  "user"
// @Success      200      {object}  response.APIResponse[string]
// @Failure      400      {object}  response.APIResponse[string]
// @Router       /api/v1/subscription/cancel [post]
func ApiCancelSubscription(subs *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UserIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err := subs.CancelSubscription(c.Request.Context(), req.UserID); err != nil {
			writePlanChangeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT("cancellation scheduled"))
	}
}

func writePlanChangeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, subsvc.ErrChangeAlreadyPending), errors.Is(err, subsvc.ErrPaymentInFlight):
		c.JSON(http.StatusConflict, response.ErrorT(response.APIResponseCodeConflict, err.Error()))
	case errors.Is(err, subsvc.ErrNoSubscription), errors.Is(err, subsvc.ErrUnknownProduct):
		c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, err.Error()))
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, response.ErrorT(response.APIResponseCodeNotFound, "user not found"))
	default:
		c.JSON(http.StatusInternalServerError, response.ErrorT(response.APIResponseCodeError, err.Error()))
	}
}

func RegisterPlanChangeRoutes(r gin.IRouter, subs *subsvc.Service) {
	r.POST("/plan-change", ApiChangePlan(subs))
	r.GET("/plan-change/preview", ApiPreviewPlanChange(subs))
	r.POST("/plan-change/cancel", ApiCancelPlanChange(subs))
	r.GET("/plan-change/status", ApiPlanChangeStatus(subs))
	r.POST("/subscription/retry-payment", ApiRetryPayment(subs))
	r.POST("/subscription/cancel", ApiCancelSubscription(subs))
}
