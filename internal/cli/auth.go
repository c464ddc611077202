package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth <profile-id>",
	Short: "Check that a password authenticates against a profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)
}

func runAuth(cmd *cobra.Command, args []string) error {
	profileID := args[0]

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
	a.manager.EndSession(profileID)

	fmt.Println("authenticated")
	return nil
}
