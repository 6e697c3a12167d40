// Package guard implements one reconciliation step of the load guard.
//
// The Engine reads the actual Cloudflare security level, syncs the local cache
// when an operator changed it by hand, samples the load average and applies
// the hysteresis policy: under_attack is entered as soon as load exceeds the
// threshold and is held for a cooldown window after entry. Mode changes that
// the API rejects leave persisted state untouched so the next run retries.
//
// Run wires the engine to the file repositories, the Cloudflare client, the
// alert dispatcher and the metrics textfile for a single process invocation.
package guard
