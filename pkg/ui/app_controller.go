package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/llinks/callSignaler/internal/app_events"
)

// AppController defines the contract between the UI and the backend call
// logic. Both the caller Controller and the CalleeApp implement it.
type AppController interface {
	// Run starts the backend services and the event loop.
	Run(ctx context.Context, cancel context.CancelFunc)

	// UIMessages returns a read-only channel for receiving messages from the backend to the UI.
	UIMessages() <-chan tea.Msg

	// AppEvents returns a write-only channel for the UI to send events to the backend.
	AppEvents() chan<- appevents.AppEvent

	// Done is closed once the backend has shut down and stopped consuming
	// app events. Sends must select on it so a late key press cannot block.
	Done() <-chan struct{}
}
