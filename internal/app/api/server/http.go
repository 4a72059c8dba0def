package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/glasswing-io/tiergate/docs"
	"github.com/glasswing-io/tiergate/internal/app/api/handlers"
	mw "github.com/glasswing-io/tiergate/internal/app/api/middleware"
	"github.com/glasswing-io/tiergate/internal/app/service/checkout"
	"github.com/glasswing-io/tiergate/internal/app/service/reconciler"
	"github.com/glasswing-io/tiergate/internal/app/service/statistics"
	subsvc "github.com/glasswing-io/tiergate/internal/app/service/subscription"
	"github.com/glasswing-io/tiergate/internal/app/service/webhook"
	cfgpkg "github.com/glasswing-io/tiergate/pkg/config"
	metrics "github.com/glasswing-io/tiergate/pkg/metrics"
	"github.com/glasswing-io/tiergate/pkg/webhookauth"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func newVerifier(cfg *cfgpkg.Config) *webhookauth.Verifier {
	return webhookauth.New(cfg.Webhook.Secret)
}

func registerRoutes(
	r *gin.Engine,
	log *zap.SugaredLogger,
	cfg *cfgpkg.Config,
	verifier *webhookauth.Verifier,
	dispatcher *webhook.Dispatcher,
	eventLog *webhook.EventLog,
	sessions *checkout.Service,
	subs *subsvc.Service,
	rec *reconciler.Service,
	stats *statistics.Service,
) {
	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	handlers.RegisterWebhookRoutes(pub, cfg, verifier, dispatcher, eventLog, log)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterCatalogRoutes(apiV1, cfg)
	handlers.RegisterCheckoutRoutes(apiV1, sessions, subs)
	handlers.RegisterPlanChangeRoutes(apiV1, subs)
	handlers.RegisterAdminRoutes(apiV1.Group("/admin"), rec, stats)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Provide(newVerifier),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
