// Package common holds helpers shared by services.
//
// It detects the current system actor (hostname/username) used to label
// alerts and log lines.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
