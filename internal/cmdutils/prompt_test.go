package cmdutils_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dnitsch/aws-session-broker/internal/cmdutils"
	"github.com/dnitsch/aws-session-broker/internal/credentialengine"
)

func Test_Challenge_returns_trimmed_code(t *testing.T) {
	out := &bytes.Buffer{}
	prompter := &cmdutils.TerminalMfaPrompter{In: strings.NewReader("  123456\n"), Out: out}

	code, err := prompter.Challenge(context.TODO(), "arn:aws:iam::123:mfa/user")

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if code != "123456" {
		t.Errorf("got %q", code)
	}
	if !strings.Contains(out.String(), "arn:aws:iam::123:mfa/user") {
		t.Errorf("serial not surfaced in the prompt: %q", out.String())
	}
}

func Test_Challenge_empty_line_cancels(t *testing.T) {
	prompter := &cmdutils.TerminalMfaPrompter{In: strings.NewReader("\n"), Out: io.Discard}

	_, err := prompter.Challenge(context.TODO(), "serial")
	if !errors.Is(err, credentialengine.ErrMfaCancelled) {
		t.Errorf("wanted ErrMfaCancelled got %v", err)
	}
}

func Test_Challenge_eof_cancels(t *testing.T) {
	prompter := &cmdutils.TerminalMfaPrompter{In: strings.NewReader(""), Out: io.Discard}

	_, err := prompter.Challenge(context.TODO(), "serial")
	if !errors.Is(err, credentialengine.ErrMfaCancelled) {
		t.Errorf("wanted ErrMfaCancelled got %v", err)
	}
}

type blockedReader struct{}

func (blockedReader) Read(p []byte) (int, error) {
	time.Sleep(time.Hour)
	return 0, io.EOF
}

func Test_Challenge_cancelled_context_cancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	prompter := &cmdutils.TerminalMfaPrompter{In: blockedReader{}, Out: io.Discard}

	done := make(chan error, 1)
	go func() {
		_, err := prompter.Challenge(ctx, "serial")
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, credentialengine.ErrMfaCancelled) {
			t.Errorf("wanted ErrMfaCancelled got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("challenge did not unblock on cancellation")
	}
}
