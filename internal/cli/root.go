// Package cli is the composition root of ndcctl: it loads configuration, builds one NDC
// client and runs a single gateway command against it.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flightgate/go-ndc-http-client/config"
	"github.com/flightgate/go-ndc-http-client/credentials"
	"github.com/flightgate/go-ndc-http-client/httpclient"
)

// tenantEnvPrefix is used for credential flags given through the environment,
// e.g. NDC_TENANT_API_ID for --api-id.
const tenantEnvPrefix = "NDC_TENANT"

type rootOptions struct {
	configPath string
	showStats  bool
}

// NewRootCommand builds the command tree. Each invocation gets fresh flag state.
func NewRootCommand(version string) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "ndcctl",
		Short: "ndcctl - NDC gateway client",
		Long: `ndcctl sends NDC messages to the airline gateway on behalf of a tenant.

Calls are authenticated, retried with backoff and guarded by a circuit breaker. Settings are
read from config.yaml and NDC_* environment variables; tenant credentials from flags or
NDC_TENANT_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")
	flags.BoolVar(&opts.showStats, "stats", false, "Print client statistics to stderr after the command")
	flags.String("domain", "", "Tenant domain")
	flags.String("api-id", "", "Tenant API id")
	flags.String("password", "", "Tenant password")
	flags.String("subscription-key", "", "Gateway subscription key")
	flags.String("environment", "", "Gateway environment (UAT or PROD)")

	rootCmd.AddCommand(newCallCommand(opts))
	rootCmd.AddCommand(newAuthCommand(opts))
	rootCmd.AddCommand(newTokenInfoCommand(opts))
	rootCmd.AddCommand(newStatsCommand(opts))
	rootCmd.AddCommand(newOperationsCommand())
	return rootCmd
}

// Execute runs ndcctl with args.
func Execute(version string, args []string) error {
	rootCmd := NewRootCommand(version)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// newClient loads configuration and builds the client. The caller must Close it.
func (o *rootOptions) newClient() (*httpclient.Client, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return httpclient.NewClientFromConfig(cfg)
}

// finish prints statistics when --stats is set and closes the client.
func (o *rootOptions) finish(cmd *cobra.Command, client *httpclient.Client) {
	if o.showStats {
		_ = writeJSON(cmd.ErrOrStderr(), statsOf(client))
	}
	client.Close()
}

// tenantCredentials reads the credential flags, falling back to NDC_TENANT_* variables.
func tenantCredentials(cmd *cobra.Command) (credentials.TenantCredentials, error) {
	vip := viper.New()
	vip.SetEnvPrefix(tenantEnvPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	vip.AutomaticEnv()
	if err := vip.BindPFlags(cmd.Flags()); err != nil {
		return credentials.TenantCredentials{}, err
	}

	env, err := credentials.ParseEnvironment(vip.GetString("environment"))
	if err != nil {
		return credentials.TenantCredentials{}, err
	}
	creds := credentials.TenantCredentials{
		Domain:          vip.GetString("domain"),
		APIID:           vip.GetString("api-id"),
		Password:        vip.GetString("password"),
		SubscriptionKey: vip.GetString("subscription-key"),
		Environment:     env,
	}
	if err := creds.Validate(); err != nil {
		return credentials.TenantCredentials{}, err
	}
	return creds, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
