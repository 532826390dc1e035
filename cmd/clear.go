package cmd

import (
	"os"

	"github.com/dnitsch/aws-session-broker/internal/credentialengine"
	"github.com/dnitsch/aws-session-broker/internal/federation"
	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Clears cached session tokens and the written credentials file",
	RunE:  clear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
}

func clear(cmd *cobra.Command, args []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	vault, err := credentialengine.NewSecretVault(credentialengine.SELF_NAME, home)
	if err != nil {
		return err
	}
	if err := vault.ClearAll(); err != nil {
		return err
	}

	credFile := credentialengine.NewIniCredentialFile(credentialengine.DefaultCredentialFilePath(home))
	if err := credFile.Clear(); err != nil {
		return err
	}

	return federation.NewBrowser(federation.NewBrowserConf(browserDataDir(home))).ClearCache()
}
