package logger

// Standard field keys for structured logging.
// Use these consistently across all log statements so runs can be correlated
// by source, realm, and principal in log aggregation.
const (
	// Source & realm
	KeySource = "source" // RealmSource slug
	KeyRealm  = "realm"  // Kerberos realm name

	// Sync run
	KeyLease    = "lease"    // lease name guarding the run
	KeyHolder   = "holder"   // lease holder identity (host+pid)
	KeyDuration = "duration" // run duration
	KeyOutcome  = "outcome"  // run outcome: done, skipped, aborted

	// Per-principal
	KeyPrincipal = "principal" // full localpart@REALM name
	KeyUsername  = "username"  // derived local username
	KeyIdentity  = "identity"  // local identity ID
	KeyMapping   = "mapping"   // property mapping name

	// Generic
	KeyError = "error"
	KeyPath  = "path"
	KeyCount = "count"
)
