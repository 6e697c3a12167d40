// Package guard contains core domain types for the load guard.
//
// It defines Mode (the Cloudflare security level as a closed enumeration with
// a fallback for unknown values), State (the cached mode and the start of the
// current under-attack window) and AlertState (the last notification time).
package guard
