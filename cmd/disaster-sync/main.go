package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ngmaloney/disaster-terminal/internal/app"
	"github.com/ngmaloney/disaster-terminal/internal/awserr"
	"github.com/ngmaloney/disaster-terminal/internal/config"
	"github.com/ngmaloney/disaster-terminal/internal/logging"
	"github.com/ngmaloney/disaster-terminal/internal/metrics"
	"github.com/ngmaloney/disaster-terminal/internal/models"
	"github.com/ngmaloney/disaster-terminal/internal/notify"
	"github.com/ngmaloney/disaster-terminal/internal/poller"
)

type options struct {
	configPath    string
	once          bool
	probe         bool
	highPriority  bool
	metricsAddr   string
	notifyHigh    bool
	subscribe     string
	unsubscribe   string
	subscriptions bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to an optional YAML config file")
	flag.BoolVar(&opts.once, "once", false, "Fetch once, print the records as JSON and exit")
	flag.BoolVar(&opts.probe, "probe", false, "Test the bucket connection, print the status as JSON and exit")
	flag.BoolVar(&opts.highPriority, "high-priority", false, "Only high severity alerts, polled on the high priority interval")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	flag.BoolVar(&opts.notifyHigh, "notify-high", false, "Publish newly seen high severity alerts to SNS")
	flag.StringVar(&opts.subscribe, "subscribe", "", "Subscribe an endpoint, as sms:+60123456789 or email:ops@example.com")
	flag.StringVar(&opts.unsubscribe, "unsubscribe", "", "Remove a subscription by ARN")
	flag.BoolVar(&opts.subscriptions, "subscriptions", false, "List subscriptions recorded locally")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ce *awserr.Error
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.Remediation())
		}
		os.Exit(1)
	}
}

func run(opts options) error {
	config.LoadEnv(nil)
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := metrics.New()
	a, err := app.Open(ctx, cfg, rec, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	switch {
	case opts.subscriptions:
		return listSubscriptions(ctx, a)
	case opts.subscribe != "":
		return subscribe(ctx, a, opts.subscribe)
	case opts.unsubscribe != "":
		n, err := a.Notifier(ctx)
		if err != nil {
			return err
		}
		return n.Unsubscribe(ctx, opts.unsubscribe)
	case opts.probe:
		status := a.Service.TestConnection(ctx)
		if err := printJSON(status); err != nil {
			return err
		}
		if !status.Connected {
			return fmt.Errorf("connection failed: %s", status.Summary())
		}
		return nil
	}

	fetch := func(ctx context.Context) ([]models.Alert, error) {
		return a.Service.GetLatestDisasterData(ctx, cfg.Poll.Limit)
	}
	interval, consumer := cfg.Poll.Interval, "sync"
	if opts.highPriority {
		fetch = a.Service.GetHighSeverityAlerts
		interval, consumer = cfg.Poll.HighPriorityInterval, "sync_high"
	}

	var dispatcher *notify.Dispatcher
	if opts.notifyHigh {
		n, err := a.Notifier(ctx)
		if err != nil {
			return err
		}
		dispatcher = notify.NewDispatcher(n, 0, 0, logger)
	}

	if opts.once {
		records, err := fetch(ctx)
		if err != nil {
			return err
		}
		if dispatcher != nil {
			dispatcher.Dispatch(ctx, records)
		}
		return printJSON(records)
	}

	return follow(ctx, a, fetch, interval, consumer, dispatcher, opts.metricsAddr, logger)
}

// follow polls until ctx is cancelled
func follow(ctx context.Context, a *app.App, fetch poller.FetchFunc, interval time.Duration, consumer string,
	dispatcher *notify.Dispatcher, metricsAddr string, logger logging.Logger) error {
	// the poller never blocks on a slow publish; only the newest batch waits
	batches := make(chan []models.Alert, 1)

	p := poller.New(fetch, poller.Options{
		Interval: interval,
		Consumer: consumer,
		Recorder: a.Metrics,
		Logger:   logger,
		OnUpdate: func(s models.SyncState) {
			if s.IsLoading || s.Error != "" || dispatcher == nil {
				return
			}
			select {
			case <-batches:
			default:
			}
			batches <- s.Records
		},
	})

	g, gctx := errgroup.WithContext(ctx)

	if metricsAddr != "" {
		srv := metrics.NewServer(metricsAddr, a.Metrics)
		g.Go(func() error {
			logger.WithField("addr", metricsAddr).Info("Serving metrics")
			if err := srv.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if dispatcher != nil {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case records := <-batches:
					if n := dispatcher.Dispatch(gctx, records); n > 0 {
						logger.WithField("published", n).Info("Published high severity alerts")
					}
				}
			}
		})
	}

	logger.WithFields(logging.Fields{
		"bucket":   a.Config.S3.Bucket,
		"interval": interval.String(),
		"consumer": consumer,
	}).Info("Starting sync")
	p.Start(gctx)

	<-gctx.Done()
	p.Stop()
	logger.Info("Sync stopped")
	return g.Wait()
}

func subscribe(ctx context.Context, a *app.App, target string) error {
	protocol, endpoint, ok := strings.Cut(target, ":")
	if !ok {
		return fmt.Errorf("invalid -subscribe %q, want protocol:endpoint", target)
	}
	n, err := a.Notifier(ctx)
	if err != nil {
		return err
	}
	arn, err := n.Subscribe(ctx, models.SubscriptionProtocol(strings.ToLower(protocol)), endpoint)
	if err != nil {
		return err
	}
	fmt.Println(arn)
	return nil
}

func listSubscriptions(ctx context.Context, a *app.App) error {
	subs, err := a.Subscriptions.ListSubscriptions(ctx, a.Config.SNS.TopicArn)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROTOCOL\tENDPOINT\tSUBSCRIPTION\tCREATED")
	for _, s := range subs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Protocol, s.Endpoint, s.SubscriptionArn, s.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
