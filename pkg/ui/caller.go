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

// callerState defines the different states of the caller UI.
type callerState int

const (
	dialing callerState = iota
	callerConnecting
	callerInCall
	callerEnded
)

type callerModel struct {
	state    callerState
	spinner  spinner.Model
	otherUID string
	duration string
	muted    bool
	speaker  bool
	errText  string
}

// CallKeyMap holds the in-call keybindings shared by both roles.
type CallKeyMap struct {
	Mute    key.Binding
	Speaker key.Binding
	HangUp  key.Binding
}

// DefaultCallKeyMap provides sensible default keybindings.
var DefaultCallKeyMap = CallKeyMap{
	Mute:    key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "Mute")),
	Speaker: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "Speaker")),
	HangUp:  key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "Hang up")),
}

func initCallerModel(otherUID string) callerModel {
	return callerModel{
		state:    dialing,
		spinner:  style.NewSpinner(),
		otherUID: otherUID,
		duration: util.FormatDuration(0),
	}
}

func (m *model) initCaller() tea.Cmd {
	return tea.Batch(
		m.caller.spinner.Tick,
		m.listenForAppMessages(),
		m.dial(),
	)
}

// dial asks the controller to start the outgoing call.
func (m *model) dial() tea.Cmd {
	return func() tea.Msg {
		m.sendAppEvent(callevents.StartCallEvent{})
		return nil
	}
}

func (m *model) updateCaller(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case callevents.RingingMsg:
		cmds = append(cmds, m.listenForAppMessages())
	case callevents.ConnectingMsg:
		m.caller.state = callerConnecting
		cmds = append(cmds, m.listenForAppMessages())
	case callevents.ConnectedMsg:
		m.caller.state = callerInCall
		m.caller.duration = util.FormatDuration(0)
		cmds = append(cmds, m.listenForAppMessages())
	case callevents.DurationMsg:
		m.caller.duration = msg.Formatted
		cmds = append(cmds, m.listenForAppMessages())
	case callevents.ControlsMsg:
		m.caller.muted = msg.Muted
		m.caller.speaker = msg.Speaker
		cmds = append(cmds, m.listenForAppMessages())
	case appevents.Error:
		m.caller.errText = msg.Err.Error()
		cmds = append(cmds, m.listenForAppMessages())
	case callevents.EndedMsg:
		m.caller.state = callerEnded
	case tea.KeyMsg:
		return m.handleCallerKey(msg)
	}

	if m.caller.state == dialing || m.caller.state == callerConnecting {
		var spinCmd tea.Cmd
		m.caller.spinner, spinCmd = m.caller.spinner.Update(msg)
		cmds = append(cmds, spinCmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) handleCallerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.caller.state == callerEnded {
		if msg.Type == tea.KeyEnter {
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, DefaultCallKeyMap.HangUp):
		m.sendAppEvent(callevents.HangUpEvent{})
	case key.Matches(msg, DefaultCallKeyMap.Mute):
		if m.caller.state == callerInCall {
			m.sendAppEvent(callevents.ToggleMuteEvent{})
		}
	case key.Matches(msg, DefaultCallKeyMap.Speaker):
		if m.caller.state == callerInCall {
			m.sendAppEvent(callevents.ToggleSpeakerEvent{})
		}
	}
	return m, nil
}

func (m model) callerView() string {
	c := m.caller
	switch c.state {
	case dialing:
		return fmt.Sprintf("\n\n %s Calling %s ...", c.spinner.View(), style.PeerStyle.Render(c.otherUID))
	case callerConnecting:
		return fmt.Sprintf("\n\n %s Connecting to %s ...", c.spinner.View(), style.PeerStyle.Render(c.otherUID))
	case callerInCall:
		return inCallView(c.otherUID, c.duration, c.muted, c.speaker)
	case callerEnded:
		s := "\n" + style.EndedStyle.Render("Call ended.")
		if c.errText != "" {
			s += "\n" + style.ErrorStyle.Render(c.errText)
		}
		return s + "\n\nPress Enter to exit."
	default:
		return "Internal error: unknown caller state"
	}
}

// inCallView renders the live-call card shared by caller and callee.
func inCallView(peer, duration string, muted, speaker bool) string {
	mic := "mic on "
	if muted {
		mic = "mic off"
	}
	spk := "speaker off"
	if speaker {
		spk = "speaker on "
	}
	help := fmt.Sprintf("  %s/%s  %s/%s  %s/%s\n",
		DefaultCallKeyMap.Mute.Help().Key, DefaultCallKeyMap.Mute.Help().Desc,
		DefaultCallKeyMap.Speaker.Help().Key, DefaultCallKeyMap.Speaker.Help().Desc,
		DefaultCallKeyMap.HangUp.Help().Key, DefaultCallKeyMap.HangUp.Help().Desc,
	)
	return fmt.Sprintf("\n %s  %s\n %s  %s\n\n%s",
		style.PeerStyle.Render(util.PadRight(peer, 20)),
		style.DurationStyle.Render(duration),
		style.ControlOnStyle.Render(util.PadRight(mic, 20)),
		style.ControlOnStyle.Render(spk),
		style.HelpStyle.Render(help),
	)
}
