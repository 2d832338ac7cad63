package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"licensekeeper/pkg/config"
	"licensekeeper/pkg/db"
	"licensekeeper/pkg/gen"
	"licensekeeper/pkg/hashistack/secretmanager"
	"licensekeeper/pkg/httpapi"
	"licensekeeper/pkg/logger"
	"licensekeeper/pkg/otelcol"
	"licensekeeper/pkg/profiling"
	"licensekeeper/pkg/server"
	"licensekeeper/services/license"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		gen.Module,
		httpapi.Module,
		license.ServerModule,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if secretmanager.Enabled() {
		opts = append(opts, secretmanager.Module)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

// Depending on *zap.Logger here builds the logger, and installs it as the
// zap global, before any other constructor runs.
var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
