// Package core provides the fundamental types and interfaces for jobgraph.
//
// This package contains:
//   - Job and Run data models with GORM annotations
//   - Dispatch and completion message wire formats
//   - JobStore and RunRegistry interfaces defining the persistence contract
//   - Queue interface defining the at-least-once transport contract
//   - Event types for scheduler monitoring
//   - Error types shared across packages
//
// Most users should import the root package github.com/aviary-sim/jobgraph
// instead of this package directly.
package core
