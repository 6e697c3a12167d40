package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var errNoMailAgent = errors.New("neither sendmail nor mail is available")

// commandRunner runs name with args, feeding stdin.
type commandRunner func(ctx context.Context, stdin []byte, name string, args ...string) error

// EmailChannel hands events to the local mail agent.
// sendmail -t is preferred; mail(1) is the fallback.
type EmailChannel struct {
	// to is the recipient address; empty means nothing is sent.
	to string
	// from is the sender address.
	from string
	// subjectPrefix is prepended to the subject.
	subjectPrefix string
	// lookPath resolves binaries on PATH.
	lookPath func(file string) (string, error)
	// run executes the mail agent.
	run commandRunner
}

// NewEmailChannel creates an e-mail channel.
func NewEmailChannel(to, from, subjectPrefix string) *EmailChannel {
	return &EmailChannel{
		to:            to,
		from:          from,
		subjectPrefix: subjectPrefix,
		lookPath:      exec.LookPath,
		run:           runCommand,
	}
}

// Name implements Channel.
func (e *EmailChannel) Name() string {
	return "email"
}

// Send implements Channel. Without a recipient or a mail agent it does nothing.
func (e *EmailChannel) Send(ctx context.Context, event Event) error {
	if e.to == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultSendTimeout)
	defer cancel()

	subject := e.subject()

	if path, err := e.lookPath("sendmail"); err == nil {
		return e.run(ctx, []byte(e.message(subject, event)), path, "-t")
	}

	if path, err := e.lookPath("mail"); err == nil {
		return e.run(ctx, []byte(event.Text()+"\n"), path, "-a", "From:"+e.from, "-s", subject, e.to)
	}

	return errNoMailAgent
}

func (e *EmailChannel) subject() string {
	prefix := e.subjectPrefix
	if prefix == "" {
		prefix = "[CF Guard]"
	}

	return prefix + " Notification"
}

// message renders an RFC 822 message for sendmail -t.
func (e *EmailChannel) message(subject string, event Event) string {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\n", e.from)
	fmt.Fprintf(&b, "To: %s\n", e.to)
	fmt.Fprintf(&b, "Subject: %s\n", subject)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\n\n")
	b.WriteString(event.Text())
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Host: %s\n", event.Host)
	fmt.Fprintf(&b, "Time (UTC): %s\n", event.Timestamp())
	fmt.Fprintf(&b, "Target Mode: %s\n", event.Mode)
	fmt.Fprintf(&b, "Load / Threshold: %s / %s\n", FormatLoad(event.Load), FormatLoad(event.Threshold))

	return b.String()
}

// runCommand executes name with stdin and discarded output.
func runCommand(ctx context.Context, stdin []byte, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}

	return nil
}
