// Package profile implements identity profiles and their health scoring.
//
// An identity profile is a named client fingerprint plus a credential
// reference. The supervisor connects to the gateway under one profile at a
// time and records connection outcomes on it:
//   - Stats track attempts, successes, rate limits, and failure streaks
//   - Performance tracks uptime (exponentially weighted), disconnects,
//     and degradation windows
//   - Scorer ranks profiles for rotation and enforces eligibility
package profile
