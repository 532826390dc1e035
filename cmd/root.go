package cmd

import (
	"context"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sso"
	"github.com/aws/aws-sdk-go-v2/service/ssooidc"
	"github.com/charmbracelet/log"
	"github.com/dnitsch/aws-session-broker/internal/cmdutils"
	"github.com/dnitsch/aws-session-broker/internal/credentialengine"
	"github.com/dnitsch/aws-session-broker/internal/federation"
	"github.com/dnitsch/aws-session-broker/internal/logging"
	"github.com/dnitsch/aws-session-broker/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	verbose              bool
	sessionTokenDuration int32
	rootCmd              = &cobra.Command{
		Use:   credentialengine.SELF_NAME,
		Short: "Derives and refreshes short-lived AWS credentials per session",
		Long: `Derives short-lived AWS credentials for plain (long-lived key, optionally MFA-gated),
federated, truster (assume-role double jump) and SSO-seeded account topologies.
Session tokens are cached in the OS secret store until they expire; the active
credential set is written to the shared AWS credentials file per profile.`,
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().Int32VarP(&sessionTokenDuration, "session-token-duration", "d", 0, "Override the GetSessionToken duration in seconds")
}

func initConfig() {
	home, err := os.UserHomeDir()
	cobra.CheckErr(err)

	viper.AddConfigPath(home)
	viper.SetConfigType("yaml")
	viper.SetConfigName(fmt.Sprintf(".%s", credentialengine.SELF_NAME))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

func newLogger() *log.Logger {
	return logging.New(os.Stderr, verbose)
}

// browserDataDir is where the federated login browser keeps its profile so
// identity-provider cookies survive across derivations.
func browserDataDir(home string) string {
	return fmt.Sprintf("%s/.%s-web", home, credentialengine.SELF_NAME)
}

// buildEngine wires the vault, credential file, workspace store, the
// federated SAML collaborator and the optional SSO portal client behind one
// engine instance.
func buildEngine(ctx context.Context, logger *log.Logger) (*credentialengine.Engine, *workspace.FileStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nil, err
	}

	vault, err := credentialengine.NewSecretVault(credentialengine.SELF_NAME, home)
	if err != nil {
		return nil, nil, err
	}
	store, err := workspace.NewFileStore(home, credentialengine.SELF_NAME)
	if err != nil {
		return nil, nil, err
	}
	credFile := credentialengine.NewIniCredentialFile(credentialengine.DefaultCredentialFilePath(home))

	engine := credentialengine.NewEngine(
		credentialengine.EngineConfig{SessionTokenDuration: sessionTokenDuration},
		vault,
		credFile,
		store,
		cmdutils.NewTerminalMfaPrompter(),
		logger,
	)

	browserConf := federation.NewBrowserConf(browserDataDir(home))
	if timeout := viper.GetInt("federation.login_timeout_seconds"); timeout > 0 {
		browserConf.WithTimeout(timeout)
	}
	engine.WithFederatedRefresher(federation.NewRefresher(
		federation.NewBrowser(browserConf), store, credFile, logger))

	if startURL := viper.GetString("sso.start_url"); startURL != "" {
		ssoRegion := viper.GetString("sso.region")
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(ssoRegion))
		if err != nil {
			return nil, nil, err
		}
		engine.WithSsoPortal(credentialengine.NewSsoClient(
			startURL,
			ssoRegion,
			ssooidc.NewFromConfig(cfg),
			sso.NewFromConfig(cfg),
			os.Stderr,
		))
	}

	return engine, store, nil
}
