// Package cli wires phantomvault's public API surface (internal/vault,
// internal/profile) to a cobra command tree.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set by main.go.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "phantomvault",
	Short: "Per-user encrypted folder vault",
	Long: `phantomvault hides folders into a per-profile encrypted vault and
restores them on demand. It uses:
  - Argon2id for password-based key derivation (memory-hard, GPU-resistant)
  - XChaCha20 for symmetric encryption, BLAKE2b-512 for authentication
  - Optional Serpent-CTR second cipher layer with HMAC-SHA3-512 (paranoid mode)
  - A one-time recovery token as a second, independent unlock path`,
	Version: Version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Execute runs the CLI application and returns the process exit code.
func Execute(version string) int {
	Version = version
	rootCmd.Version = version

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\ninterrupted")
		os.Exit(1)
	}()

	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}
