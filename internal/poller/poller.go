// Package poller keeps a sync state fresh by fetching on an interval, with
// coalesced refetches and stale data kept across failures.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ngmaloney/disaster-terminal/internal/awserr"
	"github.com/ngmaloney/disaster-terminal/internal/logging"
	"github.com/ngmaloney/disaster-terminal/internal/models"
)

const (
	// DefaultInterval is the refresh interval of the full feed
	DefaultInterval = 30 * time.Second
	// HighPriorityInterval is the refresh interval of the high severity variant
	HighPriorityInterval = 15 * time.Second
)

// FetchFunc loads the current records
type FetchFunc func(ctx context.Context) ([]models.Alert, error)

// CycleRecorder receives the outcome of every completed cycle
type CycleRecorder interface {
	CycleFinished(consumer string, d time.Duration, records int, err error)
}

// Options configures a Poller
type Options struct {
	Interval time.Duration // default DefaultInterval
	Consumer string        // name used in logs and metrics

	// OnUpdate receives a copy of the state after every transition. It runs
	// on the poller's goroutines and must not call Stop. A Refetch made from
	// inside OnUpdate is coalesced into the cycle being delivered.
	OnUpdate func(models.SyncState)

	Recorder CycleRecorder
	Logger   logging.Logger
}

// Poller keeps a SyncState fresh by calling fetch on an interval.
// Each Poller is independent; consumers that want different intervals
// run their own.
type Poller struct {
	fetch FetchFunc
	opts  Options
	now   func() time.Time

	mu       sync.Mutex
	state    models.SyncState
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	stopped  bool
	inFlight bool

	// held while OnUpdate runs so Stop can wait out a callback in progress
	notifyMu sync.Mutex
	done     chan struct{}
}

// New creates a Poller in the loading state. Nothing runs until Start.
func New(fetch FetchFunc, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Consumer == "" {
		opts.Consumer = "default"
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Poller{
		fetch: fetch,
		opts:  opts,
		now:   time.Now,
		state: models.SyncState{IsLoading: true, Records: []models.Alert{}},
		done:  make(chan struct{}),
	}
}

// Interval returns the polling interval in use
func (p *Poller) Interval() time.Duration { return p.opts.Interval }

// Start runs one fetch immediately and then one per interval until ctx is
// cancelled or Stop is called. Calling Start twice has no effect.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.trigger()
	go p.loop()
}

func (p *Poller) loop() {
	defer close(p.done)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if !p.trigger() {
				p.opts.Logger.WithField("consumer", p.opts.Consumer).Debug("Skipping tick, cycle in flight")
			}
		}
	}
}

// Refetch starts a cycle now. It returns false when the request was
// coalesced into a cycle already in flight, or the poller is not running.
func (p *Poller) Refetch() bool {
	return p.trigger()
}

// Stop cancels the ticker and any cycle in flight. No OnUpdate call starts
// after Stop returns and late results are discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	// wait out a callback in progress
	p.notifyMu.Lock()
	p.notifyMu.Unlock() //nolint:staticcheck

	if started {
		<-p.done
	}
}

// State returns a copy of the current state
func (p *Poller) State() models.SyncState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

func (p *Poller) trigger() bool {
	p.mu.Lock()
	if !p.started || p.stopped || p.inFlight {
		p.mu.Unlock()
		return false
	}
	p.inFlight = true
	p.state.IsLoading = true
	ctx := p.ctx
	snap := p.state.Clone()
	p.mu.Unlock()

	p.notify(snap)
	go p.cycle(ctx)
	return true
}

func (p *Poller) cycle(ctx context.Context) {
	start := p.now()
	records, err := p.fetch(ctx)
	elapsed := p.now().Sub(start)

	p.mu.Lock()
	if p.stopped || ctx.Err() != nil {
		p.inFlight = false
		p.mu.Unlock()
		return
	}

	p.state.IsLoading = false
	if err != nil {
		p.state.Error = describe(err)
	} else {
		if records == nil {
			records = []models.Alert{}
		}
		p.state.Records = records
		p.state.LastUpdated = p.now()
		p.state.Error = ""
	}
	snap := p.state.Clone()
	p.mu.Unlock()

	log := p.opts.Logger.WithFields(logging.Fields{
		"consumer": p.opts.Consumer,
		"duration": elapsed.String(),
	})
	if err != nil {
		log.WithError(err).Warn("Sync cycle failed, keeping previous records")
	} else {
		log.WithField("records", len(records)).Debug("Sync cycle complete")
	}
	if p.opts.Recorder != nil {
		p.opts.Recorder.CycleFinished(p.opts.Consumer, elapsed, len(snap.Records), err)
	}

	// the cycle stays in flight until its result is delivered, so the next
	// cycle's loading update can never overtake it
	p.notify(snap)

	p.mu.Lock()
	p.inFlight = false
	p.mu.Unlock()
}

func (p *Poller) notify(s models.SyncState) {
	if p.opts.OnUpdate == nil {
		return
	}
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return
	}
	p.opts.OnUpdate(s)
}

// describe renders err for SyncState.Error, adding a fix hint for
// classified cloud errors
func describe(err error) string {
	var ce *awserr.Error
	if errors.As(err, &ce) {
		return ce.Error() + ". " + ce.Remediation()
	}
	return err.Error()
}
