// Package app wires configuration into the store, service and notifier
// shared by the binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ngmaloney/disaster-terminal/internal/config"
	"github.com/ngmaloney/disaster-terminal/internal/database"
	"github.com/ngmaloney/disaster-terminal/internal/disasters"
	"github.com/ngmaloney/disaster-terminal/internal/logging"
	"github.com/ngmaloney/disaster-terminal/internal/metrics"
	"github.com/ngmaloney/disaster-terminal/internal/notify"
	"github.com/ngmaloney/disaster-terminal/internal/regions"
	"github.com/ngmaloney/disaster-terminal/internal/s3store"
)

// App holds the long-lived components built from one Config
type App struct {
	Config        *config.Config
	Service       *disasters.Service
	Subscriptions *database.Subscriptions
	Metrics       *metrics.Recorder

	db     *sql.DB
	logger logging.Logger
}

// Open builds the store and service. Missing credentials are not an error
// here: the default AWS chain may supply them and the probe reports them.
func Open(ctx context.Context, cfg *config.Config, rec *metrics.Recorder, logger logging.Logger) (*App, error) {
	store, err := s3store.New(ctx, s3store.Config{
		Bucket:       cfg.S3.Bucket,
		Prefix:       cfg.S3.Prefix,
		Region:       cfg.AWS.Region,
		Endpoint:     cfg.S3.Endpoint,
		AccessKey:    cfg.AWS.AccessKeyID,
		SecretKey:    cfg.AWS.SecretAccessKey,
		SessionToken: cfg.AWS.SessionToken,
		MaxRetries:   cfg.S3.MaxRetries,
	}, logger)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:        cfg,
		Subscriptions: database.NewSubscriptions(db),
		Metrics:       rec,
		db:            db,
		logger:        logger,
	}

	opts := disasters.Options{
		ListPageSize:    cfg.S3.ListPageSize,
		MaxObjects:      cfg.S3.MaxObjects,
		Concurrency:     cfg.S3.FetchConcurrency,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		Recorder:        rec,
	}
	if cfg.Regions.Shapefile != "" {
		if _, err := regions.Provision(db, cfg.Regions.Shapefile, logger); err != nil {
			// enrichment is optional
			logger.WithError(err).Warn("Region enrichment disabled")
		} else {
			opts.Enricher = regions.NewEnricher(regions.NewLookup(db), cfg.Regions.MaxMiles, logger)
		}
	}

	a.Service = disasters.NewService(store, opts, logger)
	return a, nil
}

// Notifier builds the SNS client with subscriptions recorded locally. The
// client is returned even when misconfigured, together with the error.
func (a *App) Notifier(ctx context.Context) (*notify.Client, error) {
	c, err := notify.New(ctx, notify.Config{
		Region:       a.Config.AWS.Region,
		AccessKey:    a.Config.AWS.AccessKeyID,
		SecretKey:    a.Config.AWS.SecretAccessKey,
		SessionToken: a.Config.AWS.SessionToken,
		TopicArn:     a.Config.SNS.TopicArn,
	}, a.logger)
	c.SetRegistry(a.Subscriptions)
	return c, err
}

// Close releases the database
func (a *App) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
