// Package alert delivers best-effort notifications about guard transitions.
//
// A Dispatcher wraps exactly one Channel (Slack webhook, e-mail via the local
// mail agent, or an arbitrary shell command) and rate limits it with a
// persisted cooldown timestamp. Delivery failures are logged and swallowed:
// alerting never changes the outcome of a guard run.
package alert
