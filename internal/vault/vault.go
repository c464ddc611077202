// Package vault implements the VaultManager (C9): the public-facing facade
// that validates session ownership, enforces the vault-entry lock/unlock
// state machine, and orchestrates ProfileRegistry, VaultCatalog, and
// FolderMover into the five public operations - hide, unhide, remove, list,
// verify_integrity.
//
// Grounded on Picocrypt-NG's top-level Encrypt/Decrypt entry points: "one
// function per public operation, delegating to phases, with a per-resource
// lock held for the duration" - generalized here from one volume file to a
// per-profile session, catalog, and mutex, and from "local CLI invocation"
// to "a long-lived facade serving repeated calls against tracked sessions."
package vault

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"sync"
	"time"

	"phantomvault/internal/audit"
	"phantomvault/internal/catalog"
	"phantomvault/internal/config"
	"phantomvault/internal/errs"
	"phantomvault/internal/metadata"
	"phantomvault/internal/mover"
	"phantomvault/internal/profile"
)

// Mode selects whether Unhide leaves the entry ready for another unlock
// (Temporary) or releases it from the vault entirely (Permanent).
type Mode string

const (
	ModeTemporary Mode = "Temporary"
	ModePermanent Mode = "Permanent"
)

// Audit event kinds this package emits, beyond what internal/profile
// already covers for authentication.
const (
	KindHide             = "InfoEvent"
	KindUnhide           = "InfoEvent"
	KindRemove           = "InfoEvent"
	KindCorruption       = "VaultCorruptionDetected"
	KindOrphanQuarantine = "VaultCorruptionDetected"
	KindSessionEnd       = "InfoEvent"
)

// trackedSession pairs a live profile.Session with the bookkeeping Manager
// needs to enforce the 15-minute idle timeout and the forced-relock-on-end
// rule for ending a session.
type trackedSession struct {
	sess       *profile.Session
	lastActive time.Time
}

// Manager is the VaultManager facade. One Manager serves every profile;
// per-profile state (catalog, active session, mutex) is created lazily on
// first use and keyed by profile id.
type Manager struct {
	dataRoot string
	registry *profile.Registry
	auditLog *audit.Log
	cfg      config.Config

	mu       sync.Mutex
	sessions map[string]*trackedSession
	catalogs map[string]*catalog.Catalog
	locks    map[string]*sync.Mutex
}

// NewManager builds a Manager over an already-open ProfileRegistry and
// AuditLog, rooted at the same dataRoot the registry and audit log use.
func NewManager(dataRoot string, registry *profile.Registry, auditLog *audit.Log, cfg config.Config) *Manager {
	return &Manager{
		dataRoot: dataRoot,
		registry: registry,
		auditLog: auditLog,
		cfg:      cfg,
		sessions: make(map[string]*trackedSession),
		catalogs: make(map[string]*catalog.Catalog),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *Manager) recordAudit(kind, severity, profileID, description string, details map[string]string) {
	if m.auditLog != nil {
		m.auditLog.Record(kind, severity, profileID, description, details)
	}
}

func (m *Manager) lockFor(profileID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[profileID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[profileID] = l
	}
	return l
}

func (m *Manager) catalogFor(profileID string) (*catalog.Catalog, error) {
	m.mu.Lock()
	c, ok := m.catalogs[profileID]
	m.mu.Unlock()
	if ok {
		return c, nil
	}

	c, err := catalog.New(filepath.Join(m.dataRoot, "vaults", profileID))
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.catalogs[profileID] = c
	m.mu.Unlock()
	return c, nil
}

// track registers sess as the live session for its profile, replacing any
// prior one (an authenticate call always supersedes an earlier session).
func (m *Manager) track(sess *profile.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prior, ok := m.sessions[sess.ProfileID]; ok {
		prior.sess.Close()
	}
	m.sessions[sess.ProfileID] = &trackedSession{sess: sess, lastActive: time.Now()}
}

// activeSession returns the live session for profileID, bumping its idle
// clock, or ErrSessionExpired if none is tracked - VaultManager's "validate
// session ownership on every call" gate.
func (m *Manager) activeSession(profileID string) (*profile.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.sessions[profileID]
	if !ok {
		return nil, errs.ErrSessionExpired
	}
	ts.lastActive = time.Now()
	return ts.sess, nil
}

// Authenticate wraps ProfileRegistry.Authenticate and begins tracking the
// resulting session for idle-timeout and relock purposes.
func (m *Manager) Authenticate(profileID, password string) error {
	sess, err := m.registry.Authenticate(profileID, password)
	if err != nil {
		return err
	}
	m.track(sess)
	return nil
}

// RedeemRecovery wraps ProfileRegistry.RedeemRecovery, returning the
// matched profile id and tracking the resulting session.
func (m *Manager) RedeemRecovery(token string) (string, error) {
	sess, err := m.registry.RedeemRecovery(token)
	if err != nil {
		return "", err
	}
	m.track(sess)
	return sess.ProfileID, nil
}

// EndSession implements session_end: every TemporarilyUnlocked
// entry for profileID is forced back to Locked before the session's master
// key is zeroized. Safe to call on a profile with no tracked session.
func (m *Manager) EndSession(profileID string) error {
	mu := m.lockFor(profileID)
	mu.Lock()
	defer mu.Unlock()

	m.mu.Lock()
	ts, ok := m.sessions[profileID]
	if ok {
		delete(m.sessions, profileID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	defer ts.sess.Close()

	if err := m.relockAll(profileID); err != nil {
		return err
	}
	m.recordAudit(KindSessionEnd, "info", profileID, "session ended", nil)
	return nil
}

func (m *Manager) relockAll(profileID string) error {
	c, err := m.catalogFor(profileID)
	if err != nil {
		return err
	}
	entries, err := c.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.State != catalog.StateTemporarilyUnlocked {
			continue
		}
		id, err := hex.DecodeString(e.ObfuscatedID)
		if err != nil {
			continue
		}
		if err := c.MarkLocked(id); err != nil {
			return err
		}
	}
	return nil
}

// StartIdleSweep runs a periodic task that ends any session idle longer
// than idleTimeout, stopping cooperatively when ctx is cancelled - the same
// ticker+context shape internal/audit uses for its retention sweep.
func (m *Manager) StartIdleSweep(ctx context.Context, interval, idleTimeout time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweepIdleSessions(idleTimeout)
			}
		}
	}()
}

func (m *Manager) sweepIdleSessions(idleTimeout time.Duration) {
	m.mu.Lock()
	var expired []string
	cutoff := time.Now().Add(-idleTimeout)
	for id, ts := range m.sessions {
		if ts.lastActive.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		_ = m.EndSession(id)
	}
}

// Hide ingests originalPath into profileID's vault, returning the new
// entry's hex-encoded obfuscated id. The paranoid (Serpent second-layer)
// setting is profileID's own, fixed at profile creation - not a per-call
// choice - so every vault entry under a profile uses one consistent suite.
func (m *Manager) Hide(profileID, originalPath string) (string, error) {
	sess, err := m.activeSession(profileID)
	if err != nil {
		return "", err
	}
	paranoid, err := m.registry.ParanoidMode(profileID)
	if err != nil {
		return "", err
	}

	mu := m.lockFor(profileID)
	mu.Lock()
	defer mu.Unlock()

	c, err := m.catalogFor(profileID)
	if err != nil {
		return "", err
	}

	id, err := catalog.GenerateObfuscatedID()
	if err != nil {
		return "", err
	}
	backupPath := c.BlobPath(id)

	checksum, metadataBlob, err := mover.Hide(originalPath, id, backupPath, sess.MasterKey(), paranoid, m.cfg.ChunkSizeBytes)
	if err != nil {
		m.recordAudit(KindHide, "warning", profileID, "hide failed", map[string]string{"path": originalPath})
		return "", err
	}

	if _, err := c.Insert(id, backupPath, checksum, metadataBlob, sess.MasterKey(), paranoid); err != nil {
		return "", err
	}

	m.recordAudit(KindHide, "info", profileID, "folder hidden", map[string]string{"obfuscated_id": hex.EncodeToString(id)})
	return hex.EncodeToString(id), nil
}

// Unhide restores entryIDHex's folder tree. mode=Permanent removes the
// catalog entry and wipes the backup afterward; mode=Temporary leaves the
// entry in TemporarilyUnlocked, to be relocked by RelockTemporary or
// EndSession.
func (m *Manager) Unhide(profileID, entryIDHex string, mode Mode) ([]metadata.Warning, error) {
	sess, err := m.activeSession(profileID)
	if err != nil {
		return nil, err
	}
	paranoid, err := m.registry.ParanoidMode(profileID)
	if err != nil {
		return nil, err
	}

	id, err := hex.DecodeString(entryIDHex)
	if err != nil {
		return nil, errs.NewValidationError("entry_id", "not valid hex")
	}

	mu := m.lockFor(profileID)
	mu.Lock()
	defer mu.Unlock()

	c, err := m.catalogFor(profileID)
	if err != nil {
		return nil, err
	}

	entry, err := c.Lookup(id, sess.MasterKey(), paranoid)
	if err != nil {
		return nil, err
	}

	em, err := mover.DecodeEntryMetadata(entry.Metadata)
	if err != nil {
		_ = c.MarkCorrupted(id)
		return nil, err
	}

	warnings, err := mover.Unhide(id, em, entry.BackupPath, entry.ContentChecksum, sess.MasterKey(), paranoid, m.cfg.ChunkSizeBytes)
	if err != nil {
		_ = c.MarkCorrupted(id)
		m.recordAudit(KindCorruption, "critical", profileID, "unhide integrity check failed", map[string]string{"obfuscated_id": entryIDHex})
		return nil, err
	}

	switch mode {
	case ModePermanent:
		if err := c.Remove(id); err != nil {
			return warnings, err
		}
		if err := mover.WipeBackup(entry.BackupPath); err != nil {
			return warnings, err
		}
	default:
		now := time.Now()
		if err := c.MarkTemporarilyUnlocked(id, &now); err != nil {
			return warnings, err
		}
	}

	m.recordAudit(KindUnhide, "info", profileID, "folder unhidden", map[string]string{
		"obfuscated_id": entryIDHex,
		"mode":          string(mode),
	})
	return warnings, nil
}

// RelockTemporary transitions a TemporarilyUnlocked entry back to Locked
// without touching its backup (the forward half of "relock_temporary" in
// the entry state machine; Unhide+ModeTemporary is the reverse).
func (m *Manager) RelockTemporary(profileID, entryIDHex string) error {
	if _, err := m.activeSession(profileID); err != nil {
		return err
	}

	id, err := hex.DecodeString(entryIDHex)
	if err != nil {
		return errs.NewValidationError("entry_id", "not valid hex")
	}

	mu := m.lockFor(profileID)
	mu.Lock()
	defer mu.Unlock()

	c, err := m.catalogFor(profileID)
	if err != nil {
		return err
	}
	return c.MarkLocked(id)
}

// Remove permanently releases entryIDHex without restoring it - the backup
// tree is securely wiped and the catalog entry deleted.
func (m *Manager) Remove(profileID, entryIDHex string) error {
	if _, err := m.activeSession(profileID); err != nil {
		return err
	}

	id, err := hex.DecodeString(entryIDHex)
	if err != nil {
		return errs.NewValidationError("entry_id", "not valid hex")
	}

	mu := m.lockFor(profileID)
	mu.Lock()
	defer mu.Unlock()

	c, err := m.catalogFor(profileID)
	if err != nil {
		return err
	}

	backupPath := c.BlobPath(id)
	if err := c.Remove(id); err != nil {
		return err
	}
	if err := mover.WipeBackup(backupPath); err != nil {
		return err
	}

	m.recordAudit(KindRemove, "info", profileID, "entry removed", map[string]string{"obfuscated_id": entryIDHex})
	return nil
}

// List returns every vault entry's plaintext summary for profileID.
func (m *Manager) List(profileID string) ([]catalog.EntrySummary, error) {
	if _, err := m.activeSession(profileID); err != nil {
		return nil, err
	}

	c, err := m.catalogFor(profileID)
	if err != nil {
		return nil, err
	}
	return c.List()
}

// VerifyIntegrity runs the catalog's integrity sweep for profileID and
// audit-logs a WARNING event per quarantined orphan.
func (m *Manager) VerifyIntegrity(profileID string) (catalog.IntegrityReport, error) {
	sess, err := m.activeSession(profileID)
	if err != nil {
		return catalog.IntegrityReport{}, err
	}
	paranoid, err := m.registry.ParanoidMode(profileID)
	if err != nil {
		return catalog.IntegrityReport{}, err
	}

	mu := m.lockFor(profileID)
	mu.Lock()
	defer mu.Unlock()

	c, err := m.catalogFor(profileID)
	if err != nil {
		return catalog.IntegrityReport{}, err
	}

	report, err := c.CheckIntegrity(sess.MasterKey(), paranoid)
	if err != nil {
		return catalog.IntegrityReport{}, err
	}

	for _, orphan := range report.OrphanFiles {
		m.recordAudit(KindOrphanQuarantine, "warning", profileID, "orphan blob quarantined", map[string]string{"blob": orphan})
	}
	for _, damaged := range report.DamagedIDs {
		m.recordAudit(KindCorruption, "critical", profileID, "catalog entry damaged", map[string]string{"obfuscated_id": damaged})
	}

	return report, nil
}
