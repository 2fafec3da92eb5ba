// Package dispatch runs the single dispatch worker.
//
// The worker consumes decoded messages from the dispatch queue one at a
// time, in enqueue order, and runs the selected command line to completion
// before taking the next message. Command execution never overlaps.
//
// Message handling:
//   - command 0        → no-op
//   - command 1..4     → look up list N, entry `value`; run it if present
//   - command 255      → stop (the worker's half of shutdown)
//   - anything else    → ignored
//
// Error handling:
//   - Missing table entry → no-op, logged at debug
//   - Spawn failure / non-zero exit → logged at debug, recorded in history
//   - History write failure → logged, worker keeps going
//   - All senders gone → logged, Run returns queue.ErrNoSenders
//
// Nothing is ever reported back to the network peer.
package dispatch
