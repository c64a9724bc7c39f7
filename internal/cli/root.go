package cli

import (
	"github.com/spf13/cobra"
)

// DefaultAPIURL — адрес conveyord по умолчанию.
const DefaultAPIURL = "http://localhost:8080"

// NewRootCmd создаёт корневую команду conveyor.
func NewRootCmd(version string) *cobra.Command {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor CLI — analysis pipeline control",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", DefaultAPIURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *Client { return NewClient(apiURL) }
	outputFn := func() *Output {
		return NewOutputTo(rootCmd.OutOrStdout(), rootCmd.ErrOrStderr(), jsonOutput)
	}

	rootCmd.AddCommand(
		NewStatusCmd(clientFn, outputFn),
		NewStartCmd(clientFn, outputFn),
		NewResetCmd(clientFn, outputFn),
		NewWatchCmd(clientFn, outputFn),
		NewCatalogCmd(clientFn, outputFn),
	)

	return rootCmd
}
