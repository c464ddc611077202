// Package privilege declares the boundary between the vault core and
// whatever platform dialog (pkexec, UAC, sudo) a host application uses to
// acquire elevated filesystem access. The core only ever asks whether a
// capability is held and requests acquisition of one that isn't - it does
// not implement, and never will implement, the prompt itself.
package privilege

import "phantomvault/internal/errs"

// Capability names a single elevated access right a caller of internal/vault
// or internal/mover might need before an operation can proceed - for
// example, restoring ownership onto a path outside the invoking user's
// normal reach, or hiding a folder the user does not own.
type Capability string

const (
	// CapChangeOwnership covers Lchown calls that target a uid/gid other
	// than the process's own during metadata restore.
	CapChangeOwnership Capability = "change-ownership"

	// CapAccessForeignPath covers hide/unhide operations against a path
	// outside directories the session's owning user already controls.
	CapAccessForeignPath Capability = "access-foreign-path"
)

// Provider is implemented by the host application, never by this module.
// VaultManager and FolderMover degrade gracefully when a capability is
// unavailable - for CapChangeOwnership that means skipping ownership
// restoration and surfacing a metadata.Warning, not failing the operation.
type Provider interface {
	// Held reports whether cap is already available to the current
	// process, without prompting.
	Held(cap Capability) (bool, error)

	// Acquire attempts to obtain cap, prompting the user through whatever
	// platform-specific dialog the host implements. Returns
	// errs.ErrInsufficientPrivilege if the user declines or the platform
	// has no elevation mechanism.
	Acquire(cap Capability) error
}

// NoProvider is a Provider that never holds and never acquires any
// capability - the default when a host application wires none in, so
// elevation-dependent steps uniformly fall back to their unprivileged path.
type NoProvider struct{}

func (NoProvider) Held(Capability) (bool, error) { return false, nil }

func (NoProvider) Acquire(Capability) error { return errs.ErrInsufficientPrivilege }
