// Package cloudflare is a minimal client for the zone security_level setting.
//
// Only two calls are made: reading the current level and patching it. Every
// failure (transport, non-2xx, malformed body) surfaces as an *APIError so the
// caller always sees a clean failure signal.
package cloudflare
