// Package ws manages long-lived duplex (WebSocket) connections for hitwire.
//
// A Session owns one connection's lifecycle:
//   - Connect with a hard timeout
//   - Keepalive pings while open
//   - User-initiated Disconnect that never reconnects
//   - Bounded automatic reconnection after abnormal closure
//   - Message history, counters and WaitForMessage for test scenarios
//
// Lifecycle notifications are delivered in order on the channel returned by
// Session.Events.
package ws
