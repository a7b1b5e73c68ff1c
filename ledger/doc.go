// Package ledger connects the services to the distributed ledger.
//
// SessionManager owns the single operator session of the process. It reads
// the operator credential from the key store, decrypts it through the
// credential vault and dials the configured network once.
//
// Orchestrator submits transactions on behalf of the services. Every
// transaction gets one transaction id for its whole life: transient failures
// are retried under the same id, and a duplicate-id answer to a retry is taken
// as proof that an earlier attempt landed. A transaction that may have landed
// is never resubmitted; when its receipt cannot be obtained the caller gets
// interfaces.KindOutcomeUnknown along with the transaction id.
//
// HederaClient is the production LedgerClient. MemoryNetwork is an
// in-process ledger with failure injection, used by tests and by the
// server's memory mode.
package ledger
