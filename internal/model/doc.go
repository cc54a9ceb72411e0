// Package model defines shared data types used across foreman.
//
// Conventions:
//   - IDs: uuid.UUID primary keys, string session ids for stream keys
//   - Timestamps: time.Time in UTC, stored as timestamptz
package model
