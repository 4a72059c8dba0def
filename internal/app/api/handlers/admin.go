package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/glasswing-io/tiergate/internal/app/service/reconciler"
	"github.com/glasswing-io/tiergate/internal/app/service/statistics"
	"github.com/glasswing-io/tiergate/pkg/response"
)

type ReconcilerStatusResponse struct {
	Running  bool                 `json:"running"`
	Overview *statistics.Overview `json:"overview"`
}

// @Summary      Reconciler Status (Admin)
// @Description  Reports whether the background reconciliation loop is running plus the counts it watches.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  response.APIResponse[ReconcilerStatusResponse]
// @Router       /api/v1/admin/reconciler [get]
func ApiReconcilerStatus(rec *reconciler.Service, stats *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		overview, err := stats.GetOverview(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ReconcilerStatusResponse{
			Running:  rec.IsRunning(),
			Overview: overview,
		}))
	}
}

// @Summary      Run Reconciliation (Admin)
// @Description  Triggers one reconciliation pass in the background.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  response.APIResponse[string]
// @Router       /api/v1/admin/reconciler/run [post]
func ApiRunReconciler(rec *reconciler.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := rec.DefaultConfig()
		go rec.RunOnce(context.Background(), cfg)
		c.JSON(http.StatusOK, response.OKT("triggered"))
	}
}

// @Summary      List Payments (Admin)
// @Description  Retrieves a paginated and filterable list of payments.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request  body      statistics.ScanPaymentsRequest  true  "List payments request with filters, pagination, and sorting"
// @Success      200      {object}  response.APIResponse[statistics.ScanPaymentsResponse]
// @Router       /api/v1/admin/list_payments [post]
func ApiListPayments(stats *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.ScanPaymentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := stats.ScanPayments(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, rec *reconciler.Service, stats *statistics.Service) {
	r.GET("/reconciler", ApiReconcilerStatus(rec, stats))
	r.POST("/reconciler/run", ApiRunReconciler(rec))
	r.POST("/list_payments", ApiListPayments(stats))
}
