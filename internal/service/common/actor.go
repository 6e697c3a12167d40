//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"os"
	"os/user"
)

// fallbackHostname is used when the hostname cannot be determined.
const fallbackHostname = "localhost"

// Actor identifies the machine and user a run executes as.
type Actor struct {
	// Hostname is the machine name shown in alerts.
	Hostname string
	// Username is the system user running the guard.
	Username string
}

// DetectActor gathers host and user information for alerts and logs.
// It never fails: unknown values fall back to placeholders.
func DetectActor() *Actor {
	actor := &Actor{
		Hostname: fallbackHostname,
		Username: "unknown",
	}

	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		actor.Hostname = hostname
	}

	if current, err := user.Current(); err == nil && current.Username != "" {
		actor.Username = current.Username
	}

	return actor
}
