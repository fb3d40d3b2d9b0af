// Package bridge lets callers outside the managed runtime ask a protector
// object living inside it whether a socket should bypass the tunnel.
//
// A Bridge caches one strong reference to the current protector together
// with its resolved decision method. SetProtector and Reset replace the pair
// under an exclusive lock; Protect snapshots it under a shared lock and calls
// the method without holding any lock.
//
// Protect never fails loudly. Every problem, from a negative descriptor to a
// trapping guest, yields false. Decide returns the same decision as an
// Outcome for callers that want to know why.
//
// # Attachment
//
// If the context passed to Protect already carries an Env attached to the
// current runtime, that Env is used and left attached. Otherwise Protect
// attaches for the duration of the call, retrying per RetryPolicy, and
// always detaches before returning.
//
// # Native Callers
//
// Control plugs into net.Dialer and net.ListenConfig and turns a false
// decision into EACCES. On supported platforms NativeCallback returns a C
// function pointer int32_t (*)(int32_t fd) for engines that call from their
// own threads.
package bridge
