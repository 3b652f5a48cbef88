// Package storage provides JobStore implementations for jobgraph.
//
// GormStore persists jobs and runs through GORM (sqlite in local mode, any
// GORM-supported database otherwise) and implements the compare-and-swap
// status transition as a conditional UPDATE checked via RowsAffected. It also
// implements core.RunRegistry so scheduler restarts can resume active runs.
//
// MemoryStore keeps the same contract in mutex-guarded indexed maps and is
// intended for tests and single-process setups.
package storage
