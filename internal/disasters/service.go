// Package disasters assembles the latest alert records from the bucket and
// diagnoses connectivity problems with it.
package disasters

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ngmaloney/disaster-terminal/internal/feed"
	"github.com/ngmaloney/disaster-terminal/internal/logging"
	"github.com/ngmaloney/disaster-terminal/internal/models"
	"github.com/ngmaloney/disaster-terminal/internal/s3store"
)

// DefaultLimit is the number of records GetLatestDisasterData keeps
const DefaultLimit = 50

// ObjectStore is the bucket access the service needs
type ObjectStore interface {
	ListRecentKeys(ctx context.Context, maxKeys int) ([]s3store.Object, error)
	SampleKeys(ctx context.Context, maxKeys int) ([]s3store.Object, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
	HeadBucket(ctx context.Context) error
	Bucket() string
	Region() string
}

// Enricher fills in derived fields on freshly decoded records
type Enricher interface {
	Enrich(alerts []models.Alert)
}

// Recorder receives fetch and probe outcomes
type Recorder interface {
	ObjectFetched(result string)
	ProbeFinished(outcome string)
}

// Options tunes how much of the bucket one sync reads
type Options struct {
	ListPageSize int // keys listed per sync, default 20
	MaxObjects   int // newest .json objects fetched, default 10
	Concurrency  int // parallel GETs, default 5

	// Credentials are only checked for presence by the probe
	AccessKeyID     string
	SecretAccessKey string

	Enricher Enricher
	Recorder Recorder
}

// Service reads and normalizes alert records. It is safe for concurrent use.
type Service struct {
	store  ObjectStore
	opts   Options
	logger logging.Logger
	now    func() time.Time
}

// NewService creates a Service over store
func NewService(store ObjectStore, opts Options, logger logging.Logger) *Service {
	if opts.ListPageSize <= 0 {
		opts.ListPageSize = 20
	}
	if opts.MaxObjects <= 0 {
		opts.MaxObjects = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	return &Service{store: store, opts: opts, logger: logger, now: time.Now}
}

// FetchAndParse reads one object and normalizes its records. Failures are
// logged and yield an empty slice so one bad object never fails a sync.
func (s *Service) FetchAndParse(ctx context.Context, key string) []models.Alert {
	log := s.logger.WithFields(logging.Fields{"bucket": s.store.Bucket(), "key": key})

	body, err := s.store.GetObject(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch object")
		s.recordFetch("error")
		return []models.Alert{}
	}

	alerts, err := feed.Decode(key, body, s.now())
	if err != nil {
		log.WithError(err).Warn("Skipping unparsable object")
		s.recordFetch("parse_error")
		return []models.Alert{}
	}

	s.recordFetch("ok")
	log.WithField("records", len(alerts)).Debug("Parsed object")
	return alerts
}

// GetLatestDisasterData returns up to limit records from the newest
// objects, newest record first. limit <= 0 means DefaultLimit.
func (s *Service) GetLatestDisasterData(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	objs, err := s.store.ListRecentKeys(ctx, s.opts.ListPageSize)
	if err != nil {
		return nil, err
	}
	objs = s3store.JSONKeys(objs)
	if len(objs) > s.opts.MaxObjects {
		objs = objs[:s.opts.MaxObjects]
	}

	results := make([][]models.Alert, len(objs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, obj := range objs {
		g.Go(func() error {
			results[i] = s.FetchAndParse(gctx, obj.Key)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all := make([]models.Alert, 0)
	for _, r := range results {
		all = append(all, r...)
	}
	feed.DedupeIDs(all)
	if s.opts.Enricher != nil {
		s.opts.Enricher.Enrich(all)
	}

	SortNewestFirst(all)
	if len(all) > limit {
		all = all[:limit]
	}

	s.logger.WithFields(logging.Fields{
		"bucket":  s.store.Bucket(),
		"objects": len(objs),
		"records": len(all),
	}).Info("Fetched latest disaster data")

	return all, nil
}

// GetHighSeverityAlerts returns the high severity subset of the latest data
func (s *Service) GetHighSeverityAlerts(ctx context.Context) ([]models.Alert, error) {
	all, err := s.GetLatestDisasterData(ctx, DefaultLimit)
	if err != nil {
		return nil, err
	}
	return models.FilterSeverity(all, models.SeverityHigh), nil
}

// GetDisasterDataByType returns the latest records of one disaster type.
// disasterType is matched the same way record types are parsed.
func (s *Service) GetDisasterDataByType(ctx context.Context, disasterType string) ([]models.Alert, error) {
	all, err := s.GetLatestDisasterData(ctx, DefaultLimit)
	if err != nil {
		return nil, err
	}
	return models.FilterType(all, models.ParseDisasterType(disasterType)), nil
}

// SortNewestFirst orders by CreatedAt descending, keeping input order on ties
func SortNewestFirst(alerts []models.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
}

func (s *Service) recordFetch(result string) {
	if s.opts.Recorder != nil {
		s.opts.Recorder.ObjectFetched(result)
	}
}
