// Package protocol implements the chat gateway session client.
//
// A session is one websocket connection to the gateway:
//   - Open dials, identifies the client by fingerprint, and restores a
//     registered device from its credentials
//   - Unregistered devices receive QR challenges until the user links them
//   - Events (QR, opened, closed, inbound messages) are delivered on
//     channels; the supervisor translates them into lifecycle transitions
//   - Sends are acked by message ID with a query timeout
//   - Ping/pong keep-alive detects stale connections
package protocol
