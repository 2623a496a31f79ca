// Package database provides connection pool management for PostgreSQL.
//
// The bot uses a single pool, shared by the profile stats store. The
// pool is created once at startup and closed by the caller on shutdown.
package database
