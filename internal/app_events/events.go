package appevents

// AppEvent is a marker interface for events sent from the TUI to the app's
// logic controller. It uses an unexported method so that only types from
// this package (by embedding Event) can satisfy the interface.
type AppEvent interface {
	isAppEvent()
}

// Event is a struct that can be embedded in other event types to satisfy
// the AppEvent interface.
type Event struct{}

func (Event) isAppEvent() {}

// Error is a message sent from the app to the TUI when something failed.
type Error struct {
	Err error
}
