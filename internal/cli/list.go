package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <profile-id>",
	Short: "Authenticate and list a profile's vault entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
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
	defer a.manager.EndSession(profileID)

	entries, err := a.manager.List(profileID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no entries")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s\t%s\tcreated %s\n", e.ObfuscatedID, e.State, e.CreatedAt)
	}
	return nil
}

var verifyCmd = &cobra.Command{
	Use:   "verify <profile-id>",
	Short: "Authenticate and run the catalog's integrity sweep",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
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
	defer a.manager.EndSession(profileID)

	report, err := a.manager.VerifyIntegrity(profileID)
	if err != nil {
		return err
	}

	if report.OK {
		fmt.Printf("ok: checked %d entries in %s\n", report.CheckedCount, report.Duration)
		return nil
	}
	fmt.Printf("integrity problems found (checked %d entries in %s):\n", report.CheckedCount, report.Duration)
	for _, id := range report.DamagedIDs {
		fmt.Printf("  damaged: %s\n", id)
	}
	for _, f := range report.OrphanFiles {
		fmt.Printf("  orphan quarantined: %s\n", f)
	}
	return nil
}
