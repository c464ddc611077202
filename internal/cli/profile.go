package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage vault profiles",
}

func init() {
	rootCmd.AddCommand(profileCmd)
}

var profileCreateParanoid bool

var profileCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new profile and print its one-time recovery token",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileCreate,
}

func init() {
	profileCreateCmd.Flags().BoolVar(&profileCreateParanoid, "paranoid", false, "enable Serpent second cipher layer + HMAC-SHA3-512 (fixed for this profile's lifetime)")
	profileCmd.AddCommand(profileCreateCmd)
}

func runProfileCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	password, err := ReadPasswordInteractive(true)
	if err != nil {
		return err
	}

	id, token, err := a.registry.Create(args[0], password, profileCreateParanoid)
	if err != nil {
		return err
	}

	fmt.Printf("profile created: %s\n", id)
	fmt.Fprintln(os.Stderr, "Recovery token (shown once - store it somewhere safe):")
	fmt.Println(token)
	return nil
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	RunE:  runProfileList,
}

func init() {
	profileCmd.AddCommand(profileListCmd)
}

func runProfileList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	summaries, err := a.registry.List()
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("no profiles")
		return nil
	}
	for _, s := range summaries {
		fmt.Printf("%s\t%s\tcreated %s\tlast access %s\n", s.ID, s.Name, s.CreatedAt, s.LastAccessAt)
	}
	return nil
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <profile-id>",
	Short: "Authenticate and permanently delete a profile and its record",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileDelete,
}

func init() {
	profileCmd.AddCommand(profileDeleteCmd)
}

func runProfileDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	password, err := readPasswordSecure("Password: ")
	if err != nil {
		return err
	}

	if err := a.registry.Delete(args[0], password); err != nil {
		return err
	}
	fmt.Println("profile deleted")
	return nil
}

var changePasswordCmd = &cobra.Command{
	Use:   "change-password <profile-id>",
	Short: "Change a profile's password and mint a fresh recovery token",
	Args:  cobra.ExactArgs(1),
	RunE:  runChangePassword,
}

func init() {
	rootCmd.AddCommand(changePasswordCmd)
}

func runChangePassword(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	oldPassword, err := readPasswordSecure("Current password: ")
	if err != nil {
		return err
	}
	newPassword, err := ReadPasswordInteractive(true)
	if err != nil {
		return err
	}

	token, err := a.registry.ChangePassword(args[0], oldPassword, newPassword)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "New recovery token (shown once - store it somewhere safe):")
	fmt.Println(token)
	return nil
}
