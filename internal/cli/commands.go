package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/flightgate/go-ndc-http-client/circuitbreaker"
	"github.com/flightgate/go-ndc-http-client/httpclient"
	"github.com/flightgate/go-ndc-http-client/metrics"
	"github.com/flightgate/go-ndc-http-client/response"
	"github.com/flightgate/go-ndc-http-client/tokencache"
)

func newCallCommand(opts *rootOptions) *cobra.Command {
	var requestFile string
	cmd := &cobra.Command{
		Use:   "call <operation>",
		Short: "Send an NDC request and print the response XML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := tenantCredentials(cmd)
			if err != nil {
				return err
			}
			body, err := readRequest(cmd.InOrStdin(), requestFile)
			if err != nil {
				return err
			}

			client, err := opts.newClient()
			if err != nil {
				return err
			}
			defer opts.finish(cmd, client)

			result, err := client.Call(cmd.Context(), creds, args[0], body)
			if err != nil {
				return err
			}

			if _, err := cmd.OutOrStdout().Write(result.XMLResponseBody); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "\nstatus=%d duration=%s correlation_id=%s transaction_id=%s token=%s\n",
				result.StatusCode, result.Duration.Round(time.Millisecond), result.CorrelationID, result.TransactionID, result.TokenInfo.Status)
			for _, ue := range result.UpstreamErrors {
				fmt.Fprintf(cmd.ErrOrStderr(), "upstream error: %s\n", describeUpstreamError(ue))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&requestFile, "file", "f", "-", "File holding the request XML, - for stdin")
	return cmd
}

func readRequest(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func describeUpstreamError(ue response.UpstreamError) string {
	if ue.Code == "" {
		return ue.Message
	}
	return ue.Code + " " + ue.Message
}

func newAuthCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Obtain a gateway token and print its status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := tenantCredentials(cmd)
			if err != nil {
				return err
			}
			client, err := opts.newClient()
			if err != nil {
				return err
			}
			defer opts.finish(cmd, client)

			info, err := client.Authenticate(cmd.Context(), creds)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), info)
		},
	}
}

func newTokenInfoCommand(opts *rootOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "token-info",
		Short: "Print the cached token status for the tenant",
		Long: `Print the cached token status for the tenant. A fresh process starts with an empty
cache, so use --refresh to authenticate first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := tenantCredentials(cmd)
			if err != nil {
				return err
			}
			client, err := opts.newClient()
			if err != nil {
				return err
			}
			defer opts.finish(cmd, client)

			if refresh {
				if _, err := client.Authenticate(cmd.Context(), creds); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), client.GetTokenInfo(creds))
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Authenticate before reporting")
	return cmd
}

type clientStats struct {
	CircuitBreakers map[string]circuitbreaker.Stats `json:"circuitBreakers"`
	TokenCache      tokencache.Stats                `json:"tokenCache"`
	Metrics         metrics.Snapshot                `json:"metrics"`
}

func statsOf(client *httpclient.Client) clientStats {
	return clientStats{
		CircuitBreakers: client.GetCircuitBreakerStats(),
		TokenCache:      client.GetTokenCacheStats(),
		Metrics:         client.GetMetrics(),
	}
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the circuit breaker, token cache and metrics snapshot of a new client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			// Materialise the gateway breaker so its configuration is visible.
			client.CircuitBreakerStats(httpclient.BreakerName)
			return writeJSON(cmd.OutOrStdout(), statsOf(client))
		},
	}
}

func newOperationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "operations",
		Short: "List the supported NDC operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range httpclient.OperationNames() {
				op, _ := httpclient.LookupOperation(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", op.Name, op.Path)
			}
			return nil
		},
	}
}
