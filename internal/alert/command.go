package alert

import (
	"context"
	"errors"
	"strings"

	"github.com/kballard/go-shellquote"
)

// MessagePlaceholder is replaced with the shell-quoted message in command templates.
const MessagePlaceholder = "#MSG#"

var errCommandRequired = errors.New("alert command is not set")

// CommandChannel runs a shell command for each event.
type CommandChannel struct {
	// template is the shell command, optionally containing MessagePlaceholder.
	template string
	// shell is the interpreter invoked with -c.
	shell string
	// run executes the shell.
	run commandRunner
}

// NewCommandChannel creates a command channel.
func NewCommandChannel(template string) *CommandChannel {
	return &CommandChannel{
		template: template,
		shell:    "/bin/sh",
		run:      runCommand,
	}
}

// Name implements Channel.
func (c *CommandChannel) Name() string {
	return "command"
}

// Send implements Channel.
func (c *CommandChannel) Send(ctx context.Context, event Event) error {
	if c.template == "" {
		return errCommandRequired
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultSendTimeout)
	defer cancel()

	return c.run(ctx, nil, c.shell, "-c", BuildCommand(c.template, event.Text()))
}

// BuildCommand substitutes the quoted message into template, or appends it
// when the template has no placeholder.
func BuildCommand(template, message string) string {
	quoted := shellquote.Join(message)

	if strings.Contains(template, MessagePlaceholder) {
		return strings.ReplaceAll(template, MessagePlaceholder, quoted)
	}

	return template + " " + quoted
}
