// Package channel provides the two one-way message channels between the
// scheduler and its workers: a dispatch queue carrying work and a completion
// queue carrying results.
//
// Queues are at-least-once: a received message becomes invisible for a
// visibility window and is redelivered unless deleted; messages exceeding the
// maximum receive count move to a dead-letter queue. Two implementations are
// provided, MemoryQueue for tests and single-process runs, and GormQueue for
// processes sharing a database.
//
// Channel pairs the two queues, handles the JSON wire formats, offloads
// oversized payloads to a blob store, and retries transient transport
// failures with exponential backoff before surfacing them as fatal.
package channel
