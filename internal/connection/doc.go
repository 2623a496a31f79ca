// Package connection implements the connection lifecycle supervisor.
//
// The supervisor:
//   - Maintains one logical gateway session across an unreliable transport
//   - Picks among identity profiles by weighted health score
//   - Tracks rate-limit events in a per-profile sliding window
//   - Retries with exponential backoff and jitter, or rotates profiles
//   - Degrades repeatedly failing profiles for a recovery period
//   - Classifies disconnects into auth, rate-limit, connection and
//     protocol causes, each with its own recovery path
package connection
