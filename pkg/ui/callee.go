package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/llinks/callSignaler/internal/app_events"
	callevents "github.com/llinks/callSignaler/internal/app_events/call"
	"github.com/llinks/callSignaler/internal/style"
	"github.com/llinks/callSignaler/internal/util"
)

// calleeState defines the different states of the callee UI.
type calleeState int

const (
	waitingForCalls calleeState = iota
	ringingPrompt
	calleeConnecting
	calleeInCall
	calleeEnded
)

type calleeModel struct {
	state    calleeState
	spinner  spinner.Model
	myUID    string
	fromUID  string
	duration string
	muted    bool
	speaker  bool
	errText  string
}

// AnswerKeyMap holds the incoming-call prompt keybindings.
type AnswerKeyMap struct {
	Accept  key.Binding
	Decline key.Binding
}

// DefaultAnswerKeyMap provides sensible default keybindings.
var DefaultAnswerKeyMap = AnswerKeyMap{
	Accept:  key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "Accept")),
	Decline: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "Decline")),
}

func initCalleeModel(myUID string) calleeModel {
	return calleeModel{
		state:    waitingForCalls,
		spinner:  style.NewSpinner(),
		myUID:    myUID,
		duration: util.FormatDuration(0),
	}
}

func (m *model) initCallee() tea.Cmd {
	return tea.Batch(
		m.callee.spinner.Tick,
		m.listenForAppMessages(),
	)
}

func (m *model) updateCallee(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case callevents.IncomingCallMsg:
		if m.callee.state == waitingForCalls {
			m.callee.state = ringingPrompt
			m.callee.fromUID = msg.FromUID
		}
		cmds = append(cmds, m.listenForAppMessages())
	case callevents.ConnectingMsg:
		m.callee.state = calleeConnecting
		cmds = append(cmds, m.listenForAppMessages())
	case callevents.ConnectedMsg:
		m.callee.state = calleeInCall
		m.callee.duration = util.FormatDuration(0)
		cmds = append(cmds, m.listenForAppMessages())
	case callevents.DurationMsg:
		m.callee.duration = msg.Formatted
		cmds = append(cmds, m.listenForAppMessages())
	case callevents.ControlsMsg:
		m.callee.muted = msg.Muted
		m.callee.speaker = msg.Speaker
		cmds = append(cmds, m.listenForAppMessages())
	case appevents.Error:
		m.callee.errText = msg.Err.Error()
		cmds = append(cmds, m.listenForAppMessages())
	case callevents.EndedMsg:
		m.callee.state = calleeEnded
		cmds = append(cmds, m.listenForAppMessages())
	case tea.KeyMsg:
		return m.handleCalleeKey(msg)
	}

	if m.callee.state == waitingForCalls || m.callee.state == ringingPrompt || m.callee.state == calleeConnecting {
		var spinCmd tea.Cmd
		m.callee.spinner, spinCmd = m.callee.spinner.Update(msg)
		cmds = append(cmds, spinCmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) handleCalleeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.callee.state {
	case ringingPrompt:
		switch {
		case key.Matches(msg, DefaultAnswerKeyMap.Accept):
			m.sendAppEvent(callevents.AcceptCallEvent{})
		case key.Matches(msg, DefaultAnswerKeyMap.Decline):
			m.sendAppEvent(callevents.DeclineCallEvent{})
		}
	case calleeInCall, calleeConnecting:
		switch {
		case key.Matches(msg, DefaultCallKeyMap.HangUp):
			m.sendAppEvent(callevents.HangUpEvent{})
		case key.Matches(msg, DefaultCallKeyMap.Mute):
			m.sendAppEvent(callevents.ToggleMuteEvent{})
		case key.Matches(msg, DefaultCallKeyMap.Speaker):
			m.sendAppEvent(callevents.ToggleSpeakerEvent{})
		}
	case calleeEnded:
		if msg.Type == tea.KeyEnter {
			// Back to waiting; the watcher is still running.
			m.callee = initCalleeModel(m.callee.myUID)
			return m, m.initCallee()
		}
	}
	return m, nil
}

func (m model) calleeView() string {
	c := m.callee
	switch c.state {
	case waitingForCalls:
		return fmt.Sprintf("\n\n %s Waiting for calls to %s ...", c.spinner.View(), style.PeerStyle.Render(c.myUID))
	case ringingPrompt:
		help := fmt.Sprintf("  %s/%s  %s/%s\n",
			DefaultAnswerKeyMap.Accept.Help().Key, DefaultAnswerKeyMap.Accept.Help().Desc,
			DefaultAnswerKeyMap.Decline.Help().Key, DefaultAnswerKeyMap.Decline.Help().Desc,
		)
		return fmt.Sprintf("\n\n %s %s is calling ...\n\n%s",
			c.spinner.View(), style.PeerStyle.Render(c.fromUID), style.HelpStyle.Render(help))
	case calleeConnecting:
		return fmt.Sprintf("\n\n %s Connecting ...", c.spinner.View())
	case calleeInCall:
		return inCallView(c.fromUID, c.duration, c.muted, c.speaker)
	case calleeEnded:
		s := "\n" + style.EndedStyle.Render("Call ended.")
		if c.errText != "" {
			s += "\n" + style.ErrorStyle.Render(c.errText)
		}
		return s + "\n\nPress Enter to keep waiting."
	default:
		return "Internal error: unknown callee state"
	}
}
