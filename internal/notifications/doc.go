// Package notifications implements the fire-and-forget notification
// gateway. Events are dispatched after the triggering write commits;
// delivery failures are logged by callers and never retried here.
package notifications
