package cli

import (
	"os"
	"testing"
)

func TestExpandDataRoot(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available in this environment")
	}

	if got := expandDataRoot("~/.phantomvault"); got != home+"/.phantomvault" {
		t.Errorf("expandDataRoot(~/.phantomvault) = %q, want %q", got, home+"/.phantomvault")
	}
	if got := expandDataRoot("~"); got != home {
		t.Errorf("expandDataRoot(~) = %q, want %q", got, home)
	}
	if got := expandDataRoot("/abs/path"); got != "/abs/path" {
		t.Errorf("expandDataRoot should leave absolute paths untouched, got %q", got)
	}
}

func TestVersionFlag(t *testing.T) {
	Version = "v1.0.0"
	rootCmd.Version = Version
	if rootCmd.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", rootCmd.Version)
	}
}

func TestCommandArgValidation(t *testing.T) {
	if err := hideCmd.Args(hideCmd, []string{"only-one-arg"}); err == nil {
		t.Error("hide should require exactly 2 args")
	}
	if err := hideCmd.Args(hideCmd, []string{"profile-id", "/some/path"}); err != nil {
		t.Errorf("hide should accept exactly 2 args: %v", err)
	}

	if err := profileCreateCmd.Args(profileCreateCmd, nil); err == nil {
		t.Error("profile create should require exactly 1 arg")
	}

	if err := unhideCmd.Args(unhideCmd, []string{"profile-id", "entry-id", "extra"}); err == nil {
		t.Error("unhide should reject a third argument")
	}
}

func TestRootCommandTreeRegistered(t *testing.T) {
	want := []string{"profile", "change-password", "auth", "hide", "unhide", "relock-temporary", "remove", "list", "verify", "recovery"}
	have := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("expected %q registered as a subcommand of root", name)
		}
	}
}
