package ui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/llinks/callSignaler/pkg/call"
	"github.com/llinks/callSignaler/pkg/signaling/memory"
)

// A key press that lands after the controller has shut down has nobody left
// to consume it; Update must still return instead of freezing the program.
func TestKeyPressAfterCallEndDoesNotBlock(t *testing.T) {
	ctrl := call.NewCaller(memory.NewStore(), "chat-1", "alice", "bob")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx, nil)

	ctrl.HangUp()
	<-ctrl.Done()

	m := InitialCallerModel(ctrl, "bob")
	returned := make(chan struct{})
	go func() {
		defer close(returned)
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("h")})
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Update blocked on a key press after the call ended")
	}
}

// The prompt keys go through the same guarded send on the callee screen.
func TestCalleePromptKeyAfterShutdownDoesNotBlock(t *testing.T) {
	app := call.NewCalleeApp(memory.NewStore(), "chat-1", "bob")
	ctx, cancel := context.WithCancel(context.Background())
	go app.Run(ctx, nil)
	cancel()
	<-app.Done()

	m := InitialCalleeModel(app, "bob")
	m.callee.state = ringingPrompt
	returned := make(chan struct{})
	go func() {
		defer close(returned)
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Update blocked on a prompt key after shutdown")
	}
}
