package app

import (
	"time"

	"github.com/glasswing-io/tiergate/internal/app/api/server"
	"github.com/glasswing-io/tiergate/internal/app/service/checkout"
	"github.com/glasswing-io/tiergate/internal/app/service/reconciler"
	"github.com/glasswing-io/tiergate/internal/app/service/statistics"
	"github.com/glasswing-io/tiergate/internal/app/service/subscription"
	"github.com/glasswing-io/tiergate/internal/app/service/webhook"
	"github.com/glasswing-io/tiergate/internal/platform/db"
	"github.com/glasswing-io/tiergate/internal/platform/provider"
	"github.com/glasswing-io/tiergate/pkg/config"
	"github.com/glasswing-io/tiergate/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	provider.Module,
	server.Module,
	webhook.Module,
	checkout.Module,
	subscription.Module,
	reconciler.Module,
	statistics.Module,
)
