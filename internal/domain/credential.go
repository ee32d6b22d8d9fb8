package domain

import (
	"os"
	"time"
)

// CredentialKind distinguishes the two independent credential flows
type CredentialKind string

const (
	CredentialRemoteAPIToken CredentialKind = "remote-api-token"
	CredentialDaemonIdentity CredentialKind = "daemon-identity"
)

// CredentialState is the validation state of a credential record
type CredentialState string

const (
	CredentialUnvalidated  CredentialState = "unvalidated"
	CredentialValid        CredentialState = "valid"
	CredentialInvalidFatal CredentialState = "invalid-fatal"
	CredentialInvalidSoft  CredentialState = "invalid-soft"
)

// OwnerOnlyFileMode is the mode of every file under the credential directory
const OwnerOnlyFileMode os.FileMode = 0o600

// OwnerOnlyDirMode is the mode of the credential directory itself
const OwnerOnlyDirMode os.FileMode = 0o700

// CredentialRecord tracks one external credential through validation.
// Records are never deleted by anything in this module.
type CredentialRecord struct {
	Kind  CredentialKind  `json:"kind"`
	State CredentialState `json:"state"`
	Path  string          `json:"path"`
	Mode  os.FileMode     `json:"mode"`

	// Method names the transport that verified the credential
	Method string `json:"method,omitempty"`
	// Detail is a human-readable explanation of the final state
	Detail string `json:"detail,omitempty"`
}

// NewCredentialRecord creates an unvalidated record with owner-only mode
func NewCredentialRecord(kind CredentialKind, path string) CredentialRecord {
	return CredentialRecord{
		Kind:  kind,
		State: CredentialUnvalidated,
		Path:  path,
		Mode:  OwnerOnlyFileMode,
	}
}

// Valid reports whether the record reached the valid state
func (c CredentialRecord) Valid() bool {
	return c.State == CredentialValid
}

// AuditRecord is persisted after a daemon identity is verified
type AuditRecord struct {
	Username   string    `json:"username"`
	Method     string    `json:"method"`
	VerifiedAt time.Time `json:"verified_at"`
}
