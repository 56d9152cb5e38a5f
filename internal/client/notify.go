package client

import (
	"fmt"
	"os/exec"
)

// Notifier surfaces an incoming message to the user outside the terminal
// UI. spec.md §1 treats the OS notification sink as an external
// collaborator; this implementation shells out to a configurable external
// program, the idiomatic Go equivalent of the original daemon's
// fork+exec-based notifier.
type Notifier interface {
	Notify(title, body string) error
}

// execNotifier runs an external notification command with title and body
// as arguments.
type execNotifier struct {
	command string
	args    []string
}

// NewExecNotifier returns a Notifier that shells out to command, appending
// title and body after any fixed args. An empty command disables
// notifications (NoopNotifier is used instead).
func NewExecNotifier(command string, args ...string) Notifier {
	if command == "" {
		return NoopNotifier{}
	}
	return &execNotifier{command: command, args: args}
}

func (n *execNotifier) Notify(title, body string) error {
	args := append(append([]string{}, n.args...), title, body)
	cmd := exec.Command(n.command, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("client: run notifier: %w", err)
	}
	return nil
}

// NoopNotifier discards notifications. Used when no notification command is
// configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(title, body string) error { return nil }
