package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ngmaloney/disaster-terminal/internal/app"
	"github.com/ngmaloney/disaster-terminal/internal/config"
	"github.com/ngmaloney/disaster-terminal/internal/logging"
	"github.com/ngmaloney/disaster-terminal/internal/models"
	"github.com/ngmaloney/disaster-terminal/internal/ui"
)

func main() {
	configPath := flag.String("config", "", "Path to an optional YAML config file")
	highPriority := flag.Bool("high-priority", false, "Start in the high severity variant")
	flag.Parse()

	config.LoadEnv(nil)
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.NewFileLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx := context.Background()
	a, err := app.Open(ctx, cfg, nil, logger)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	m := ui.NewModel(ui.Deps{
		Fetch: func(ctx context.Context) ([]models.Alert, error) {
			return a.Service.GetLatestDisasterData(ctx, cfg.Poll.Limit)
		},
		FetchHigh:            a.Service.GetHighSeverityAlerts,
		Interval:             cfg.Poll.Interval,
		HighPriorityInterval: cfg.Poll.HighPriorityInterval,
		Probe:                a.Service.TestConnection,
		Bucket:               cfg.S3.Bucket,
		StartHighPriority:    *highPriority,
		Logger:               logger,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running application: %v\n", err)
		os.Exit(1)
	}
}
