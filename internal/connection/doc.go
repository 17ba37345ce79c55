// Package connection implements the NATS bus connection.
//
// The Client:
//   - Connects once at startup (unreachable bus is fatal to the caller)
//   - Reconnects transparently afterwards, logging disconnects
//   - Exposes one Subscription per subject, each delivering RawMessage values
//     on a bounded channel
//   - Drains subscriptions on Close so in-flight messages are delivered first
package connection
