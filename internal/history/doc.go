// Package history keeps a ledger of reconciliation passes and the install
// and uninstall transitions they staged, in a gorm-managed sqlite database.
// Recorder is a reconcile.Observer.
package history
