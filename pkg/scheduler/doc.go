// Package scheduler drives execution of job DAGs across stateless workers.
//
// The scheduler seeds a run by inserting its graph into the job store and
// dispatching every source job, then loops: long-poll the completion
// channel, advance graph state per message, dispatch newly-ready
// successors, and acknowledge the message only after its state transition
// committed. Correctness under duplicate and out-of-order delivery rests on
// the store's compare-and-swap status transition; see ProcessDelivery.
//
// Runs are tracked through a core.RunRegistry. MemoryRegistry keeps them in
// process memory; the gorm store doubles as a persistent registry for
// restart-safe tracking.
package scheduler
