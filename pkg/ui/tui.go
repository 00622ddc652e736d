package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/llinks/callSignaler/internal/app_events"
)

type mode int

const (
	None mode = iota
	Caller
	Callee
)

type model struct {
	mode          mode
	appController AppController
	caller        callerModel
	callee        calleeModel
}

// InitialCallerModel builds the UI for an outgoing call to otherUID.
func InitialCallerModel(appController AppController, otherUID string) model {
	return model{
		mode:          Caller,
		appController: appController,
		caller:        initCallerModel(otherUID),
	}
}

// InitialCalleeModel builds the UI that waits for incoming calls to myUID.
func InitialCalleeModel(appController AppController, myUID string) model {
	return model{
		mode:          Callee,
		appController: appController,
		callee:        initCalleeModel(myUID),
	}
}

func (m model) Init() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	go m.appController.Run(ctx, cancel)

	switch m.mode {
	case Caller:
		return m.initCaller()
	case Callee:
		return m.initCallee()
	default:
		return nil
	}
}

// listenForAppMessages is a command that waits for the next message from
// the app controller. It is re-armed after every received message.
func (m *model) listenForAppMessages() tea.Cmd {
	return func() tea.Msg {
		return <-m.appController.UIMessages()
	}
}

// sendAppEvent forwards a UI event to the app controller. Once the
// controller has shut down nothing drains its event channel, so the send
// gives up instead of wedging Update on a late key press.
func (m *model) sendAppEvent(ev appevents.AppEvent) {
	select {
	case m.appController.AppEvents() <- ev:
	case <-m.appController.Done():
	}
}

func (m model) View() string {
	var s string
	switch m.mode {
	case Caller:
		s += m.callerView()
	case Callee:
		s += m.calleeView()
	default:
		return ""
	}
	s += "\nPress ctrl + c to quit"
	return s
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	switch m.mode {
	case Caller:
		return m.updateCaller(msg)
	case Callee:
		return m.updateCallee(msg)
	}

	return m, nil
}
