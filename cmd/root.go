// Package cmd wires the musebag command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "musebag",
	Short: "MuseBag — server-side adapter for multimodal search",
	Long: `musebag is the server-side adapter for the MuseBag multimodal
search front-end. It composes RUCoD query documents from heterogeneous
query fragments, enriches them with real-world context, relays uploaded
media to the query formulation service, and proxies profile and search
history operations to the personalisation service.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
