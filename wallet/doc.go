// Package wallet provisions one custodial ledger account per user.
//
// Provisioner generates the keypair, seals it through the credential vault and
// creates the account through the transaction orchestrator. Reconciler settles
// the records of attempts that were interrupted between the ledger and the
// registries. FakeProvisioner is an in-memory double for handler tests.
package wallet
