package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"phantomvault/internal/vault"
)

var unhideTemporary bool

var unhideCmd = &cobra.Command{
	Use:   "unhide <profile-id> <entry-id>",
	Short: "Authenticate and restore a hidden folder to its original path",
	Long: `Restores the folder tree for entry-id back to its original path.

By default the entry is released from the vault permanently (its backup is
wiped once restored). Pass --temporary to leave the entry unlocked for
re-hiding later, until relock-temporary or the session ends.`,
	Args: cobra.ExactArgs(2),
	RunE: runUnhide,
}

func init() {
	unhideCmd.Flags().BoolVar(&unhideTemporary, "temporary", false, "leave the entry TemporarilyUnlocked instead of releasing it")
	rootCmd.AddCommand(unhideCmd)
}

func runUnhide(cmd *cobra.Command, args []string) error {
	profileID, entryID := args[0], args[1]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	password, err := readPasswordSecure("Password: ")
	if err != nil {
		return err
	}
	if err := a.manager.Authenticate(profileID, password); err != nil {
		return err
	}
	defer a.manager.EndSession(profileID)

	mode := vault.ModePermanent
	if unhideTemporary {
		mode = vault.ModeTemporary
	}

	warnings, err := a.manager.Unhide(profileID, entryID, mode)
	if err != nil {
		return err
	}

	fmt.Println("restored")
	for _, w := range warnings {
		fmt.Printf("warning: %s: %v\n", w.Field, w.Err)
	}
	return nil
}

var relockCmd = &cobra.Command{
	Use:   "relock-temporary <profile-id> <entry-id>",
	Short: "Relock a TemporarilyUnlocked entry without touching its backup",
	Args:  cobra.ExactArgs(2),
	RunE:  runRelock,
}

func init() {
	rootCmd.AddCommand(relockCmd)
}

func runRelock(cmd *cobra.Command, args []string) error {
	profileID, entryID := args[0], args[1]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	password, err := readPasswordSecure("Password: ")
	if err != nil {
		return err
	}
	if err := a.manager.Authenticate(profileID, password); err != nil {
		return err
	}
	defer a.manager.EndSession(profileID)

	if err := a.manager.RelockTemporary(profileID, entryID); err != nil {
		return err
	}
	fmt.Println("relocked")
	return nil
}

var removeCmd = &cobra.Command{
	Use:   "remove <profile-id> <entry-id>",
	Short: "Permanently release an entry without restoring it, wiping its backup",
	Args:  cobra.ExactArgs(2),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	profileID, entryID := args[0], args[1]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	password, err := readPasswordSecure("Password: ")
	if err != nil {
		return err
	}
	if err := a.manager.Authenticate(profileID, password); err != nil {
		return err
	}
	defer a.manager.EndSession(profileID)

	if err := a.manager.Remove(profileID, entryID); err != nil {
		return err
	}
	fmt.Println("removed")
	return nil
}
