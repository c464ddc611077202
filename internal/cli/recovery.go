package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var recoveryCmd = &cobra.Command{
	Use:   "recovery",
	Short: "Recovery-token operations",
}

func init() {
	rootCmd.AddCommand(recoveryCmd)
}

var recoveryRedeemCmd = &cobra.Command{
	Use:   "redeem",
	Short: "Redeem a recovery token, printing the matched profile id on success",
	RunE:  runRecoveryRedeem,
}

func init() {
	recoveryCmd.AddCommand(recoveryRedeemCmd)
}

func runRecoveryRedeem(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprint(os.Stderr, "Recovery token: ")
	reader := bufio.NewReader(os.Stdin)
	token, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading recovery token: %w", err)
	}
	token = strings.TrimSpace(token)

	profileID, err := a.manager.RedeemRecovery(token)
	if err != nil {
		return err
	}
	defer a.manager.EndSession(profileID)

	fmt.Printf("redeemed: profile %s is now unlocked for this session\n", profileID)
	if a.cfgForceRotate() {
		fmt.Fprintln(os.Stderr, "A password change is required before the vault can be used again - run:")
		fmt.Fprintf(os.Stderr, "  phantomvault change-password %s\n", profileID)
	}
	return nil
}
