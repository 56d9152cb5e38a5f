package client

import (
	"bufio"
	"crypto/ed25519"
	"fmt"
	"io"
	"strings"
)

// UI is the out-of-scope terminal front-end spec.md §1 describes only by
// interface: it reads commands from the user and displays incoming/outgoing
// messages. Session drives it; Session never assumes a particular UI
// implementation.
type UI interface {
	// StatusLine surfaces an error or state-transition message to the user.
	StatusLine(msg string)
	// Display renders one message in the currently selected conversation.
	Display(sender ed25519.PublicKey, content string)
	// Selected reports which peer's conversation is currently on screen. A
	// UI that windows conversations returns (peer, true) so the receive
	// task only calls Display for a live update to that window and persists
	// everything else silently; a UI with no such windowing (like LineUI)
	// returns (nil, false) to mean "show every incoming message".
	Selected() (ed25519.PublicKey, bool)
	// Shutdown tells the UI the session has ended and it should exit.
	Shutdown()
}

// LineUI is a minimal line-oriented terminal UI: every incoming message is
// printed to stdout regardless of selection, and it tracks no selected
// conversation (Selected always reports none). Sufficient to drive the CLI
// end to end without a full TUI.
type LineUI struct {
	out io.Writer
	in  *bufio.Scanner
}

// NewLineUI wraps the given reader/writer as a LineUI.
func NewLineUI(in io.Reader, out io.Writer) *LineUI {
	return &LineUI{out: out, in: bufio.NewScanner(in)}
}

func (u *LineUI) StatusLine(msg string) {
	fmt.Fprintf(u.out, "* %s\n", msg)
}

func (u *LineUI) Display(sender ed25519.PublicKey, content string) {
	fmt.Fprintf(u.out, "%x: %s\n", sender, content)
}

func (u *LineUI) Selected() (ed25519.PublicKey, bool) { return nil, false }

func (u *LineUI) Shutdown() {
	fmt.Fprintln(u.out, "* connection closed, exiting")
}

// ReadLine blocks for the next line of user input ("<recipient-hex> message"),
// returning io.EOF when stdin closes.
func (u *LineUI) ReadLine() (recipient, message string, err error) {
	if !u.in.Scan() {
		if err := u.in.Err(); err != nil {
			return "", "", err
		}
		return "", "", io.EOF
	}
	line := u.in.Text()
	recipient, message, ok := strings.Cut(line, " ")
	if !ok {
		return "", "", fmt.Errorf("client: expected \"<recipient> <message>\"")
	}
	return recipient, message, nil
}
