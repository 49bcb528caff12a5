// Package sync implements the identity-federation synchronization engine.
//
// A sync run pulls principal records from an external Kerberos realm,
// derives local-identity properties for each principal through an ordered
// mapping pipeline, and reconciles the result against the local identity
// store. Runs are guarded by a database-backed lease so at most one sync per
// realm executes across the whole worker fleet, and per-principal failures
// are isolated so one bad record never aborts a batch.
package sync
