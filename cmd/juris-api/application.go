package main

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/juris/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/batch"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/cases"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/config"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/database"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/datajud"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/movements"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/server"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/tracing"
	"github.com/juju/clock"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const serviceName = "juris-api"

// application holds the wired components shared by every command.
type application struct {
	config       config.AppConfig
	logger       *zap.Logger
	db           *gorm.DB
	metrics      *metrics.Collector
	sessions     *auth.SessionValidator
	cases        *cases.Repository
	store        *movements.Store
	synchronizer *movements.Synchronizer
	reader       *movements.Reader
	scheduler    *batch.Scheduler
	realtime     *server.RealtimeDispatcher
	shutdown     tracing.ShutdownFunc
}

func newApplication(ctx context.Context) (app *application, err error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logging.Options{
		Level:      appConfig.LogLevel,
		File:       appConfig.LogFile,
		MaxSizeMB:  appConfig.LogMaxSizeMB,
		MaxBackups: appConfig.LogMaxBackups,
	})
	if err != nil {
		return nil, err
	}

	app = &application{config: appConfig, logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.shutdown, err = tracing.Init(ctx, tracing.Config{
		ServiceName:  serviceName,
		OTLPEndpoint: appConfig.OTLPEndpoint,
		Insecure:     appConfig.OTLPInsecure,
	}, logger)
	if err != nil {
		return app, err
	}

	app.db, err = database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return app, err
	}

	app.sessions, err = auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.AuthSigningKey),
		Issuer:        appConfig.AuthIssuer,
		Audience:      appConfig.AuthAudience,
		CookieName:    appConfig.AuthCookieName,
	})
	if err != nil {
		return app, err
	}

	app.metrics = metrics.NewCollector()
	app.realtime = server.NewRealtimeDispatcher()

	app.cases, err = cases.NewRepository(cases.RepositoryConfig{
		Database: app.db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return app, err
	}

	app.store, err = movements.NewStore(movements.StoreConfig{
		Database:   app.db,
		Clock:      time.Now,
		IDProvider: movements.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return app, err
	}

	client, err := datajud.NewClient(datajud.ClientConfig{
		BaseURL:           appConfig.DatajudBaseURL,
		APIKey:            appConfig.DatajudAPIKey,
		Timeout:           appConfig.DatajudTimeout,
		RequestsPerSecond: appConfig.DatajudRequestsPerSecond,
		Logger:            logger,
		Latency:           app.metrics,
	})
	if err != nil {
		return app, err
	}

	app.synchronizer, err = movements.NewSynchronizer(movements.SynchronizerConfig{
		Cases:    app.cases,
		Fetcher:  client,
		Store:    app.store,
		Clock:    time.Now,
		Logger:   logger,
		Notifier: app.realtime,
		Metrics:  app.metrics,
	})
	if err != nil {
		return app, err
	}

	app.reader, err = movements.NewReader(movements.ReaderConfig{
		Snapshots:    app.store,
		Synchronizer: app.synchronizer,
		Clock:        time.Now,
		Logger:       logger,
	})
	if err != nil {
		return app, err
	}

	app.scheduler, err = batch.NewScheduler(batch.SchedulerConfig{
		Cases:        app.cases,
		Synchronizer: app.synchronizer,
		Clock:        clock.WallClock,
		Hour:         appConfig.BatchHour,
		Minute:       appConfig.BatchMinute,
		Location:     appConfig.BatchLocation,
		Logger:       logger,
		Metrics:      app.metrics,
	})
	if err != nil {
		return app, err
	}

	return app, nil
}

// Close flushes spans, closes the database and syncs the logger.
func (a *application) Close() {
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.shutdown(ctx); err != nil {
			a.logger.Warn("tracing shutdown failed", zap.Error(err))
		}
		cancel()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = a.logger.Sync()
}
