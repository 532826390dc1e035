package cmdutils

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dnitsch/aws-session-broker/internal/credentialengine"
	"golang.org/x/term"
)

// TerminalMfaPrompter asks for a one-time code on the controlling terminal.
// An empty line, EOF or a cancelled context all translate into the engine's
// cancellation sentinel so a dismissed prompt is an abort, not an error.
type TerminalMfaPrompter struct {
	In  io.Reader
	Out io.Writer
}

func NewTerminalMfaPrompter() *TerminalMfaPrompter {
	return &TerminalMfaPrompter{In: os.Stdin, Out: os.Stderr}
}

func (p *TerminalMfaPrompter) Challenge(ctx context.Context, mfaSerial string) (string, error) {
	if f, ok := p.In.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return "", fmt.Errorf("stdin is not a terminal, %w", credentialengine.ErrMfaCancelled)
	}

	fmt.Fprintf(p.Out, "MFA code for %s (empty to cancel): ", mfaSerial)

	type answer struct {
		code string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		ch <- answer{strings.TrimSpace(line), err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s, %w", ctx.Err(), credentialengine.ErrMfaCancelled)
	case a := <-ch:
		if a.err != nil && a.code == "" {
			return "", fmt.Errorf("%s, %w", a.err, credentialengine.ErrMfaCancelled)
		}
		if a.code == "" {
			return "", credentialengine.ErrMfaCancelled
		}
		return a.code, nil
	}
}
