// Package loop implements the single logical thread on which every state
// reconciliation runs.
//
// Remote calls execute on their own goroutines and suspend only at the network
// boundary. Their continuations are posted to the Loop, which runs them one at a
// time in FIFO order. Two continuations therefore never interleave mid-mutation,
// whatever action kind they belong to.
//
// Every posted event is stamped with a monotonic sequence number from Clock,
// which makes the processing order observable in logs and tests.
package loop
