// Package service runs provisioning and teardown.
//
// # Pipeline
//
// Pipeline executes the ordered provisioning stages against a RunContext.
// Each stage is a plain function returning a domain.StageResult; stages
// never decide whether a failure aborts the run. That decision lives in
// the pipeline's policy table: fatal stages stop the run with exit code 1
// and leave completed work in place, every other stage has its failures
// downgraded to warnings.
//
// # Reset
//
// ResetManager runs the inverse sequence. It removes what the pipeline
// generated, keeps the log directory and the credential directory, and
// treats missing artifacts as already removed.
//
// # Events
//
// Both publish progress on an EventBus and record every result in the run
// ledger, so a run can be diagnosed after the terminal is gone.
package service
