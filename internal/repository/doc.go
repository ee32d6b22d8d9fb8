// Package repository defines the run ledger used by cyt-bootstrap.
//
// The ledger keeps two things across runs:
//
//   - a history of every provisioning or reset run and the result of each
//     stage, so a failed run can be diagnosed after the terminal is gone
//   - the artifact manifest: the digest of the last content written to each
//     generated file, which is how hand edits are told apart from stale
//     output
//
// # SQLite Implementation
//
// The sqlite subpackage stores the ledger in logs/provision_history.db
// using the pure-Go modernc.org/sqlite driver, so the bootstrap needs no
// C toolchain on the target host. The schema is migrated on open.
package repository
