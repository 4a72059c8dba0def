package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/glasswing-io/tiergate/pkg/config"
	"github.com/glasswing-io/tiergate/pkg/response"
	"github.com/glasswing-io/tiergate/pkg/types"
)

type ProductItem struct {
	ProductID        string `json:"product_id"`
	Tier             string `json:"tier"`
	TierLevel        int    `json:"tier_level"`
	BillingFrequency string `json:"billing_frequency"`
	DurationDays     int    `json:"duration_days"`
}

// @Summary      List Products
// @Description  Returns the tier catalog: every purchasable product with its tier and billing frequency.
// @Tags         Catalog
// @Produce      json
// @Success      200  {object}  response.APIResponse[[]ProductItem]
// @Router       /api/v1/products [get]
func ApiListProducts(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		items := lo.Map(cfg.Products, func(p *types.TierProduct, _ int) ProductItem {
			return ProductItem{
				ProductID:        p.ProductID,
				Tier:             string(p.Tier),
				TierLevel:        p.Tier.Level(),
				BillingFrequency: string(p.BillingFrequency),
				DurationDays:     p.DurationDays,
			}
		})
		c.JSON(http.StatusOK, response.OKT(items))
	}
}

func RegisterCatalogRoutes(r gin.IRouter, cfg *config.Config) {
	r.GET("/products", ApiListProducts(cfg))
}
