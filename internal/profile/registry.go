package profile

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/Picocrypt/zxcvbn-go"
	"github.com/google/uuid"

	"phantomvault/internal/config"
	"phantomvault/internal/crypto"
	"phantomvault/internal/errs"
	"phantomvault/internal/recovery"
	"phantomvault/internal/store"
)

// Audit event kinds this package emits, matching internal/audit's kind
// vocabulary so internal/audit needs no translation layer.
const (
	KindAuthFailure             = "AuthFailure"
	KindAuthSuccess             = "AuthSuccess"
	KindRateLimitBreach         = "RateLimitBreach"
	KindRecoveryRedemption      = "RecoveryRedemption"
	KindInfoEvent               = "InfoEvent"
	KindVaultCorruptionDetected = "VaultCorruptionDetected"
)

// RateLimiter is the subset of C5 that ProfileRegistry depends on. Defined
// here rather than imported from internal/ratelimit so this package accepts
// an interface instead of a concrete type. Check is the gate applied before
// any KDF work; RecordFailure is fed after a failed attempt; Reset clears
// the window after a successful one.
type RateLimiter interface {
	Check(identifier string) error
	RecordFailure(identifier string)
	Reset(identifier string)
}

// AuditSink is the subset of C6 that ProfileRegistry depends on.
type AuditSink interface {
	Record(kind, severity, profileID, description string, details map[string]string)
}

// Session carries an unwrapped master key for one authenticated profile.
// Bound to a scoped resource lifetime - callers must defer Close() - and
// holds no process-wide cache; dropping the Session without closing it
// still leaves the key material in memory until garbage collected, so
// Close() must always run on every path, including errors downstream.
type Session struct {
	ProfileID string
	ctx       *crypto.CryptoContext
}

// MasterKey returns the session's unwrapped master key. The returned slice
// aliases Session-owned memory; callers must not retain it past Close().
func (s *Session) MasterKey() []byte {
	if s == nil || s.ctx == nil {
		return nil
	}
	return s.ctx.MasterKey
}

// Close zeroizes the session's master key. Safe to call multiple times.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.ctx.Close()
}

// Registry implements ProfileRegistry: create, authenticate, change
// password, delete, list.
type Registry struct {
	dir     string
	cfg     config.Config
	limiter RateLimiter
	audit   AuditSink

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewRegistry opens a registry rooted at dir (normally
// "<data_root>/profiles"). limiter and audit may be nil in tests that don't
// exercise those concerns.
func NewRegistry(dir string, cfg config.Config, limiter RateLimiter, audit AuditSink) *Registry {
	return &Registry{
		dir:     dir,
		cfg:     cfg,
		limiter: limiter,
		audit:   audit,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (r *Registry) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

// lockFor returns the per-profile mutex, serializing authenticate,
// change_password, hide, unhide, remove within a single profile (§5) while
// leaving other profiles free to proceed concurrently.
func (r *Registry) lockFor(id string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	m, ok := r.locks[id]
	if !ok {
		m = &sync.Mutex{}
		r.locks[id] = m
	}
	return m
}

func (r *Registry) recordAudit(kind, severity, profileID, description string, details map[string]string) {
	if r.audit != nil {
		r.audit.Record(kind, severity, profileID, description, details)
	}
}

// Create generates a fresh profile: a 512-bit master key wrapped twice (by
// password, by a freshly minted recovery token), and persists the record.
// The password must score at least cfg.MinPasswordScore (zxcvbn scale)
// before any KDF work happens. paranoid is fixed for the profile's lifetime
// and selects the Serpent-CTR second cipher layer and HMAC-SHA3-512 MAC for
// every suite this profile's key ever derives (see ParanoidMode).
func (r *Registry) Create(name, password string, paranoid bool) (profileID, recoveryToken string, err error) {
	if zxcvbn.PasswordStrength(password, nil).Score < r.cfg.MinPasswordScore {
		return "", "", errs.NewValidationError("password", "below minimum strength")
	}

	id := uuid.NewString()
	kdf := r.cfg.KDFDefaults

	masterKey, err := crypto.RandomBytes(kdf.KeyLen)
	if err != nil {
		return "", "", err
	}
	defer crypto.SecureZero(masterKey)

	prof := newProfile(id, name, kdf, paranoid)

	authSalt, err := crypto.NewSalt(kdf.SaltLen)
	if err != nil {
		return "", "", err
	}
	authVerifier, err := crypto.DeriveKey([]byte(password), authSalt, kdf)
	if err != nil {
		return "", "", err
	}
	prof.Auth = AuthBlock{Salt: authSalt, Verifier: authVerifier}

	dataSalt, err := crypto.NewSalt(kdf.SaltLen)
	if err != nil {
		return "", "", err
	}
	wrapped, nonce, err := wrapWithPassword(password, dataSalt, kdf, paranoid, masterKey, []byte(id))
	if err != nil {
		return "", "", err
	}
	prof.Data = DataBlock{Salt: dataSalt, MasterWrapped: wrapped, Nonce: nonce, AAD: []byte(id)}

	token, mat, err := recovery.Generate(kdf, paranoid, masterKey, []byte(id))
	if err != nil {
		return "", "", err
	}
	prof.Recovery = RecoveryBlock{
		Salt:             mat.Salt,
		Verifier:         mat.Verifier,
		MasterWrapped:    mat.MasterWrapped,
		Nonce:            mat.Nonce,
		AAD:              mat.AAD,
		TokenFingerprint: mat.TokenFingerprint,
	}

	if err := store.WriteAtomic(r.path(id), prof); err != nil {
		return "", "", err
	}

	r.recordAudit(KindInfoEvent, "info", id, "profile created", nil)
	return id, token, nil
}

// Authenticate loads profileID's record, gates on the rate limiter, derives
// the authenticator, and - on a match - unwraps the master key into a
// scoped Session. An unknown profile and a wrong password both return the
// same generic ErrAuthenticationFailed. A rate-limited attempt returns
// ErrRateLimited, which callers must treat identically for "try again"
// purposes but which the rate limiter itself distinguishes for lockout
// bookkeeping. A profile flagged corrupted returns ErrCorrupted, and a KDF
// failure is returned as is.
func (r *Registry) Authenticate(profileID, password string) (*Session, error) {
	mu := r.lockFor(profileID)
	mu.Lock()
	defer mu.Unlock()

	if r.limiter != nil {
		if err := r.limiter.Check(profileID); err != nil {
			r.recordAudit(KindRateLimitBreach, "warning", profileID, "rate limited", nil)
			return nil, err
		}
	}

	fail := func(kind, severity, reason string) (*Session, error) {
		r.recordAudit(kind, severity, profileID, reason, nil)
		if r.limiter != nil {
			r.limiter.RecordFailure(profileID)
		}
		return nil, errs.ErrAuthenticationFailed
	}

	var prof Profile
	if err := store.ReadJSON(r.path(profileID), &prof); err != nil {
		return fail(KindAuthFailure, "warning", "unknown profile")
	}

	if prof.Corrupted {
		r.recordAudit(KindAuthFailure, "critical", profileID, "profile flagged corrupted, refusing authentication", nil)
		return nil, errs.ErrCorrupted
	}

	kdf := prof.KDF.toParams()
	authVerifier, err := crypto.DeriveKey([]byte(password), prof.Auth.Salt, kdf)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureZero(authVerifier)

	if !crypto.ConstantTimeEqual(authVerifier, prof.Auth.Verifier) {
		return fail(KindAuthFailure, "warning", "wrong password")
	}

	masterKey, err := unwrapWithPassword(password, prof.Data.Salt, kdf, prof.KDF.Paranoid, prof.Data.MasterWrapped, prof.Data.Nonce, prof.Data.AAD)
	if err != nil {
		return fail(KindAuthFailure, "critical", "data unwrap failed despite verifier match")
	}

	prof.LastAccessAt = timeNow()
	if err := store.WriteAtomic(r.path(profileID), prof); err != nil {
		crypto.SecureZero(masterKey)
		return nil, err
	}

	if r.limiter != nil {
		r.limiter.Reset(profileID)
	}
	r.recordAudit(KindAuthSuccess, "info", profileID, "authenticated", nil)
	return &Session{ProfileID: profileID, ctx: &crypto.CryptoContext{MasterKey: masterKey}}, nil
}

// ChangePassword requires the current password, then re-derives every salt
// and wrap (including a fresh recovery token, invalidating the old one by
// construction) and persists atomically - if any step fails before the
// final rename, the on-disk record is unchanged.
func (r *Registry) ChangePassword(profileID, oldPassword, newPassword string) (newRecoveryToken string, err error) {
	mu := r.lockFor(profileID)
	mu.Lock()
	defer mu.Unlock()

	if zxcvbn.PasswordStrength(newPassword, nil).Score < r.cfg.MinPasswordScore {
		return "", errs.NewValidationError("password", "below minimum strength")
	}

	var prof Profile
	if err := store.ReadJSON(r.path(profileID), &prof); err != nil {
		return "", errs.ErrAuthenticationFailed
	}

	kdf := prof.KDF.toParams()
	authVerifier, err := crypto.DeriveKey([]byte(oldPassword), prof.Auth.Salt, kdf)
	if err != nil {
		return "", err
	}
	if !crypto.ConstantTimeEqual(authVerifier, prof.Auth.Verifier) {
		return "", errs.ErrAuthenticationFailed
	}

	masterKey, err := unwrapWithPassword(oldPassword, prof.Data.Salt, kdf, prof.KDF.Paranoid, prof.Data.MasterWrapped, prof.Data.Nonce, prof.Data.AAD)
	if err != nil {
		return "", errs.ErrAuthenticationFailed
	}
	defer crypto.SecureZero(masterKey)

	updated := prof
	newAuthSalt, err := crypto.NewSalt(kdf.SaltLen)
	if err != nil {
		return "", err
	}
	newAuthVerifier, err := crypto.DeriveKey([]byte(newPassword), newAuthSalt, kdf)
	if err != nil {
		return "", err
	}
	updated.Auth = AuthBlock{Salt: newAuthSalt, Verifier: newAuthVerifier}

	newDataSalt, err := crypto.NewSalt(kdf.SaltLen)
	if err != nil {
		return "", err
	}
	wrapped, nonce, err := wrapWithPassword(newPassword, newDataSalt, kdf, prof.KDF.Paranoid, masterKey, []byte(profileID))
	if err != nil {
		return "", err
	}
	updated.Data = DataBlock{Salt: newDataSalt, MasterWrapped: wrapped, Nonce: nonce, AAD: []byte(profileID)}

	token, mat, err := recovery.Generate(kdf, prof.KDF.Paranoid, masterKey, []byte(profileID))
	if err != nil {
		return "", err
	}
	updated.Recovery = RecoveryBlock{
		Salt:             mat.Salt,
		Verifier:         mat.Verifier,
		MasterWrapped:    mat.MasterWrapped,
		Nonce:            mat.Nonce,
		AAD:              mat.AAD,
		TokenFingerprint: mat.TokenFingerprint,
	}
	updated.LastAccessAt = timeNow()

	if err := store.WriteAtomic(r.path(profileID), updated); err != nil {
		return "", err
	}

	r.recordAudit(KindInfoEvent, "info", profileID, "password changed", nil)
	return token, nil
}

// Delete requires authentication, then securely wipes the persisted record.
func (r *Registry) Delete(profileID, password string) error {
	sess, err := r.Authenticate(profileID, password)
	if err != nil {
		return err
	}
	sess.Close()

	mu := r.lockFor(profileID)
	mu.Lock()
	defer mu.Unlock()

	path := r.path(profileID)
	if err := overwriteThenRemove(path); err != nil {
		return err
	}

	r.recordAudit(KindInfoEvent, "info", profileID, "profile deleted", nil)
	return nil
}

// Summary is the list-view projection of a Profile: no key material.
type Summary struct {
	ID           string
	Name         string
	CreatedAt    string
	LastAccessAt string
}

// ParanoidMode reports whether profileID was created with the Serpent
// second-layer cipher enabled. Fixed at Create time; callers outside this
// package (VaultManager) need it to derive vault-entry and content cipher
// suites with the same paranoid setting the profile's own key wrap uses.
func (r *Registry) ParanoidMode(profileID string) (bool, error) {
	var prof Profile
	if err := store.ReadJSON(r.path(profileID), &prof); err != nil {
		return false, err
	}
	return prof.KDF.Paranoid, nil
}

// List enumerates every persisted profile without requiring authentication.
func (r *Registry) List() ([]Summary, error) {
	names, err := store.ListDir(r.dir)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(names))
	for _, name := range names {
		var prof Profile
		if err := store.ReadJSON(filepath.Join(r.dir, name), &prof); err != nil {
			continue // skip unreadable/corrupted records rather than fail the whole list
		}
		summaries = append(summaries, Summary{
			ID:           prof.ID,
			Name:         prof.Name,
			CreatedAt:    prof.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			LastAccessAt: prof.LastAccessAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return summaries, nil
}

// recoveryMatch pairs a matched profile id with the master key its recovery
// material unwrapped to.
type recoveryMatch struct {
	id  string
	key []byte
}

// RedeemRecovery validates a recovery token's checksum, then scans every
// persisted profile's recovery verifier in constant time (no short-circuit
// on match) to find the one profile the token belongs to - there is no
// plaintext back-pointer from token to profile id in storage. Exactly one
// match is the only valid outcome: more than one means two profiles' recovery
// verifiers collided, which can never happen for independently generated
// tokens and is treated as corruption rather than an ambiguous success.
func (r *Registry) RedeemRecovery(token string) (*Session, error) {
	entropy, err := recovery.DecodeAndVerifyChecksum(token)
	if err != nil {
		return nil, errs.ErrAuthenticationFailed
	}

	names, err := store.ListDir(r.dir)
	if err != nil {
		return nil, err
	}

	var matches []recoveryMatch
	for _, name := range names {
		var prof Profile
		if err := store.ReadJSON(filepath.Join(r.dir, name), &prof); err != nil {
			continue
		}

		mat := recovery.Material{
			Salt:             prof.Recovery.Salt,
			Verifier:         prof.Recovery.Verifier,
			MasterWrapped:    prof.Recovery.MasterWrapped,
			Nonce:            prof.Recovery.Nonce,
			AAD:              prof.Recovery.AAD,
			TokenFingerprint: prof.Recovery.TokenFingerprint,
		}

		key, err := recovery.Unwrap(entropy, prof.KDF.toParams(), prof.KDF.Paranoid, mat)
		if err == nil {
			matches = append(matches, recoveryMatch{id: prof.ID, key: key})
		}
	}

	if len(matches) == 0 {
		r.recordAudit(KindAuthFailure, "warning", "", "recovery redemption failed", nil)
		return nil, errs.ErrAuthenticationFailed
	}

	if len(matches) > 1 {
		for _, m := range matches {
			crypto.SecureZero(m.key)
			r.markCorrupted(m.id)
			r.recordAudit(KindVaultCorruptionDetected, "critical", m.id, "recovery verifier collision across profiles", nil)
		}
		return nil, errs.ErrCorrupted
	}

	r.recordAudit(KindRecoveryRedemption, "info", matches[0].id, "recovery token redeemed", nil)
	return &Session{ProfileID: matches[0].id, ctx: &crypto.CryptoContext{MasterKey: matches[0].key}}, nil
}

// markCorrupted flags profileID's record so future Authenticate calls refuse
// it instead of trusting a profile whose recovery verifier proved ambiguous.
func (r *Registry) markCorrupted(profileID string) {
	mu := r.lockFor(profileID)
	mu.Lock()
	defer mu.Unlock()

	var prof Profile
	if err := store.ReadJSON(r.path(profileID), &prof); err != nil {
		return
	}
	prof.Corrupted = true
	_ = store.WriteAtomic(r.path(profileID), prof)
}

// overwriteThenRemove clobbers a record's bytes with zeros before unlinking
// it, so a filesystem-level recovery tool finds no trace of the key
// material that used to live there.
func overwriteThenRemove(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.NewIOOpError("stat", path, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return errs.NewIOOpError("open", path, err)
	}
	_, werr := f.WriteAt(make([]byte, info.Size()), 0)
	serr := f.Sync()
	f.Close()
	if werr != nil {
		return errs.NewIOOpError("write", path, werr)
	}
	if serr != nil {
		return errs.NewIOOpError("fsync", path, serr)
	}
	return store.Remove(path)
}
