// Package core defines the shared language of LeapDB.
//
// This package contains:
//   - Record data (RawRecord, RecordStatus, reserved columns)
//   - Batch operations and query result rows
//   - Schema signals reported by adapters on connect
//   - Adapter configuration and the error taxonomy
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
