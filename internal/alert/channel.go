package alert

import (
	"errors"
	"fmt"

	"github.com/oshokin/cf-guard/internal/config"
)

// ErrUnknownMode is returned for an unsupported ALERT_MODE.
var ErrUnknownMode = errors.New("unknown alert mode")

// NewChannel builds the channel selected by cfg.Mode.
// It returns a nil Channel for "none".
//
//nolint:ireturn // Channel is selected at runtime.
func NewChannel(cfg config.Alert, host string) (Channel, error) {
	switch cfg.Mode {
	case "", config.AlertModeNone:
		return nil, nil
	case config.AlertModeSlack:
		return NewSlackChannel(cfg.SlackWebhook, cfg.SlackUseBlocks), nil
	case config.AlertModeEmail:
		from := cfg.EmailFrom
		if from == "" {
			from = "cf-guard@" + host
		}

		return NewEmailChannel(cfg.EmailTo, from, cfg.EmailSubjectPrefix), nil
	case config.AlertModeCommand:
		return NewCommandChannel(cfg.Command), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
}
