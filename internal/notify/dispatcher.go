package notify

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ngmaloney/disaster-terminal/internal/logging"
	"github.com/ngmaloney/disaster-terminal/internal/models"
)

// Publisher sends one alert
type Publisher interface {
	PublishAlert(ctx context.Context, a models.Alert) (string, error)
}

// Dispatcher publishes high severity alerts the first time they are seen
type Dispatcher struct {
	pub    Publisher
	seen   *expirable.LRU[string, struct{}]
	logger logging.Logger
}

// NewDispatcher remembers up to maxSeen alert ids for ttl
func NewDispatcher(pub Publisher, maxSeen int, ttl time.Duration, logger logging.Logger) *Dispatcher {
	if maxSeen <= 0 {
		maxSeen = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Dispatcher{
		pub:    pub,
		seen:   expirable.NewLRU[string, struct{}](maxSeen, nil, ttl),
		logger: logger,
	}
}

// Dispatch publishes every unseen high severity alert and returns how many
// were sent. Alerts that fail to publish are retried on the next call.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []models.Alert) int {
	sent := 0
	for _, a := range alerts {
		if !a.IsHighSeverity() || d.seen.Contains(a.ID) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if _, err := d.pub.PublishAlert(ctx, a); err != nil {
			d.logger.WithError(err).WithField("alert", a.ID).Warn("Failed to publish alert")
			continue
		}
		d.seen.Add(a.ID, struct{}{})
		sent++
	}
	return sent
}
