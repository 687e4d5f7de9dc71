package ui

import (
	"context"
	"sync"
	"time"

	"github.com/ngmaloney/disaster-terminal/internal/logging"
	"github.com/ngmaloney/disaster-terminal/internal/models"
	"github.com/ngmaloney/disaster-terminal/internal/poller"
)

// controller owns the dashboard's poller. It is shared by every copy of
// the Model so a restart replaces the poller for all of them.
type controller struct {
	fetch     poller.FetchFunc
	fetchHigh poller.FetchFunc // high severity only; falls back to fetch
	recorder  poller.CycleRecorder
	logger    logging.Logger

	normal time.Duration
	urgent time.Duration

	// latest state only; a slow UI skips intermediate transitions
	updates chan models.SyncState

	mu       sync.Mutex
	p        *poller.Poller
	high     bool
	interval time.Duration
	running  bool
}

func newController(fetch, fetchHigh poller.FetchFunc, normal, urgent time.Duration, recorder poller.CycleRecorder, logger logging.Logger) *controller {
	if fetchHigh == nil {
		fetchHigh = fetch
	}
	if normal <= 0 {
		normal = poller.DefaultInterval
	}
	if urgent <= 0 {
		urgent = poller.HighPriorityInterval
	}
	c := &controller{
		fetch:     fetch,
		fetchHigh: fetchHigh,
		recorder:  recorder,
		logger:    logger,
		normal:    normal,
		urgent:    urgent,
		updates:   make(chan models.SyncState, 1),
		interval:  normal,
	}
	c.p = c.newPoller()
	return c
}

func (c *controller) newPoller() *poller.Poller {
	fetch, consumer := c.fetch, "dashboard"
	if c.high {
		fetch, consumer = c.fetchHigh, "dashboard_high"
	}
	return poller.New(fetch, poller.Options{
		Interval: c.interval,
		Consumer: consumer,
		OnUpdate: c.publish,
		Recorder: c.recorder,
		Logger:   c.logger,
	})
}

func (c *controller) publish(s models.SyncState) {
	for {
		select {
		case c.updates <- s:
			return
		default:
			select {
			case <-c.updates:
			default:
			}
		}
	}
}

func (c *controller) start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.p.Start(context.Background())
}

// setHighPriority swaps the poller for the high severity variant or back.
// The new poller starts with an immediate fetch when the old one was running.
func (c *controller) setHighPriority(high bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if high == c.high {
		return
	}
	c.p.Stop()
	c.high = high
	c.interval = c.normal
	if high {
		c.interval = c.urgent
	}
	c.p = c.newPoller()
	if c.running {
		c.p.Start(context.Background())
	}
}

func (c *controller) refetch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.p.Refetch()
}

func (c *controller) currentInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

func (c *controller) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.p.Stop()
}
