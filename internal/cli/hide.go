package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var hideCmd = &cobra.Command{
	Use:   "hide <profile-id> <path>",
	Short: "Authenticate and hide a folder into the vault",
	Args:  cobra.ExactArgs(2),
	RunE:  runHide,
}

func init() {
	rootCmd.AddCommand(hideCmd)
}

func runHide(cmd *cobra.Command, args []string) error {
	profileID, path := args[0], args[1]

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

	entryID, err := a.manager.Hide(profileID, path)
	if err != nil {
		return err
	}

	fmt.Printf("hidden: %s\n", entryID)
	return nil
}
