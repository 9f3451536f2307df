// Collective call order must match across every PE; a mismatch is a
// contract violation left as undefined behaviour. This
// package does not attempt general-purpose validation of that
// contract, but two primitives would otherwise deadlock silently
// rather than fail loudly, so they assert the one thing cheap to
// check:
//
//   - AllToAll asserts the sender's table has exactly Size() entries.
//   - ScatterV/GatherV assert nothing beyond what the rendezvous
//     itself enforces (every rank must call, root or not).
//
// Everything else — matching argument types, matching counts across
// AllGather callers, matching comparator behaviour across sample-sort
// callers — is the caller's responsibility, exactly as it is in the
// MPI model this layer mirrors.
package comm
