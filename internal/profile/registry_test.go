package profile

import (
	"path/filepath"
	"testing"

	"phantomvault/internal/config"
	"phantomvault/internal/errs"
	"phantomvault/internal/store"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.KDFDefaults.MemoryCostKiB = 19456
	cfg.KDFDefaults.TimeCost = 2
	cfg.MinPasswordScore = 0
	return cfg
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(filepath.Join(t.TempDir(), "profiles"), testConfig(), nil, nil)
}

func TestCreateAndAuthenticate(t *testing.T) {
	reg := newTestRegistry(t)

	id, token, err := reg.Create("alice", "correct horse battery staple", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == "" || token == "" {
		t.Fatal("Create should return a non-empty profile id and recovery token")
	}

	sess, err := reg.Authenticate(id, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	defer sess.Close()

	if len(sess.MasterKey()) == 0 {
		t.Error("session should carry a non-empty master key")
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	reg := newTestRegistry(t)
	id, _, err := reg.Create("bob", "hunter2-but-better", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = reg.Authenticate(id, "wrong-password")
	if !errs.Is(err, errs.ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestAuthenticateUnknownProfile(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Authenticate("does-not-exist", "whatever")
	if !errs.Is(err, errs.ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestChangePasswordInvalidatesOldRecovery(t *testing.T) {
	reg := newTestRegistry(t)
	id, oldToken, err := reg.Create("carol", "p1-initial-password", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	newToken, err := reg.ChangePassword(id, "p1-initial-password", "p2-new-password")
	if err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if newToken == oldToken {
		t.Fatal("change_password should mint a fresh recovery token")
	}

	if _, err := reg.Authenticate(id, "p1-initial-password"); !errs.Is(err, errs.ErrAuthenticationFailed) {
		t.Error("old password should no longer authenticate")
	}

	sess, err := reg.Authenticate(id, "p2-new-password")
	if err != nil {
		t.Fatalf("new password should authenticate: %v", err)
	}
	sess.Close()

	if _, err := reg.RedeemRecovery(oldToken); !errs.Is(err, errs.ErrAuthenticationFailed) {
		t.Error("old recovery token should be invalidated by the password change")
	}

	sess, err = reg.RedeemRecovery(newToken)
	if err != nil {
		t.Fatalf("new recovery token should redeem: %v", err)
	}
	sess.Close()
}

func TestRecoveryUnwrapsSameMasterKeyAsPassword(t *testing.T) {
	reg := newTestRegistry(t)
	id, token, err := reg.Create("dave", "a-reasonably-long-passphrase", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	pwSess, err := reg.Authenticate(id, "a-reasonably-long-passphrase")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	defer pwSess.Close()

	recSess, err := reg.RedeemRecovery(token)
	if err != nil {
		t.Fatalf("RedeemRecovery failed: %v", err)
	}
	defer recSess.Close()

	if string(pwSess.MasterKey()) != string(recSess.MasterKey()) {
		t.Error("password-unwrapped and recovery-unwrapped master keys must match")
	}
}

func TestDeleteRequiresAuthentication(t *testing.T) {
	reg := newTestRegistry(t)
	id, _, err := reg.Create("erin", "delete-me-password", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := reg.Delete(id, "wrong-password"); !errs.Is(err, errs.ErrAuthenticationFailed) {
		t.Error("Delete should require the correct password")
	}

	if err := reg.Delete(id, "delete-me-password"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := reg.Authenticate(id, "delete-me-password"); !errs.Is(err, errs.ErrAuthenticationFailed) {
		t.Error("deleted profile should no longer authenticate")
	}
}

func TestList(t *testing.T) {
	reg := newTestRegistry(t)
	if _, _, err := reg.Create("frank", "frank-password-1", false); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, _, err := reg.Create("grace", "grace-password-1", false); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	summaries, err := reg.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Errorf("got %d summaries, want 2", len(summaries))
	}
}

func TestCreateRejectsWeakPassword(t *testing.T) {
	cfg := testConfig()
	cfg.MinPasswordScore = 4
	reg := NewRegistry(filepath.Join(t.TempDir(), "profiles"), cfg, nil, nil)

	if _, _, err := reg.Create("weak", "123", false); err == nil {
		t.Error("Create should reject a weak password when MinPasswordScore is high")
	}
}

func TestParanoidModeFixedAtCreate(t *testing.T) {
	reg := newTestRegistry(t)

	plainID, _, err := reg.Create("helen", "helen-password-123", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	paranoidID, _, err := reg.Create("ivan", "ivan-password-123", true)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	plain, err := reg.ParanoidMode(plainID)
	if err != nil {
		t.Fatalf("ParanoidMode failed: %v", err)
	}
	if plain {
		t.Error("profile created with paranoid=false should report ParanoidMode() == false")
	}

	paranoid, err := reg.ParanoidMode(paranoidID)
	if err != nil {
		t.Fatalf("ParanoidMode failed: %v", err)
	}
	if !paranoid {
		t.Error("profile created with paranoid=true should report ParanoidMode() == true")
	}

	sess, err := reg.Authenticate(paranoidID, "ivan-password-123")
	if err != nil {
		t.Fatalf("Authenticate of paranoid profile failed: %v", err)
	}
	sess.Close()
}

func TestRedeemRecoveryCollisionMarksCorrupted(t *testing.T) {
	reg := newTestRegistry(t)

	judyID, token, err := reg.Create("judy", "judy-password-123", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	karlID, _, err := reg.Create("karl", "karl-password-123", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Force a verifier collision: clone judy's recovery material onto karl's
	// record so the same token unwraps against both profiles, the only way
	// this situation can arise short of an actual implementation bug.
	var judyProf, karlProf Profile
	if err := store.ReadJSON(reg.path(judyID), &judyProf); err != nil {
		t.Fatalf("ReadJSON(judy) failed: %v", err)
	}
	if err := store.ReadJSON(reg.path(karlID), &karlProf); err != nil {
		t.Fatalf("ReadJSON(karl) failed: %v", err)
	}
	karlProf.Recovery = judyProf.Recovery
	karlProf.KDF = judyProf.KDF
	if err := store.WriteAtomic(reg.path(karlID), karlProf); err != nil {
		t.Fatalf("WriteAtomic(karl) failed: %v", err)
	}

	if _, err := reg.RedeemRecovery(token); !errs.Is(err, errs.ErrCorrupted) {
		t.Errorf("expected ErrCorrupted on a verifier collision, got %v", err)
	}

	if _, err := reg.Authenticate(judyID, "judy-password-123"); !errs.Is(err, errs.ErrCorrupted) {
		t.Errorf("judy should be flagged corrupted after the collision, got %v", err)
	}
	if _, err := reg.Authenticate(karlID, "karl-password-123"); !errs.Is(err, errs.ErrCorrupted) {
		t.Errorf("karl should be flagged corrupted after the collision, got %v", err)
	}
}
