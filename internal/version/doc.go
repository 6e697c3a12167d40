// Package version exposes build metadata for cf-guard.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. UserAgent renders the identifier sent to the Cloudflare API.
package version
