// Package notifier tells operators about newly mirrored events.
//
// Every event gets one message to a single destination chat. Sends are
// independent and best-effort: a failed send is logged with the event's
// external id and recorded in the returned Delivery list, and the
// remaining events are still attempted. Nothing is retried here; the
// caller runs the notifier only after the events are committed.
//
// # Destination
//
// The destination is the notification chat when configured, otherwise the
// default administrator chat. When neither is set the notifier logs a
// single warning per call and sends nothing.
//
// # History
//
// The service keeps a small in-memory history of recent deliveries for
// the /status command.
package notifier
