// Package notifier tells operators about publish outcomes.
//
// It watches the event bus for finished attempts, renders a short message
// per attempt and delivers it through a transport.Sender.
//
// # Delivery
//
// Messages go through a bounded queue and one worker that applies a token
// bucket rate limit and retries with jittered exponential backoff. Repeated
// failures for the same account and reason are suppressed for a dedup
// window so a dead session does not flood the chat.
package notifier
