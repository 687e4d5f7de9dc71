package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ngmaloney/disaster-terminal/internal/models"
)

// syncStateMsg carries a poller state transition
type syncStateMsg models.SyncState

// probeResultMsg is sent when a connection probe completes
type probeResultMsg models.ConnectionStatus

// ProbeFunc checks connectivity to the bucket
type ProbeFunc func(ctx context.Context) models.ConnectionStatus

// waitForState waits for the next poller update
func waitForState(ch <-chan models.SyncState) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return syncStateMsg(s)
	}
}

// runProbe runs the connection probe in the background
func runProbe(probe ProbeFunc) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return probeResultMsg(probe(ctx))
	}
}
