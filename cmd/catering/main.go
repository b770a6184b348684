// Command catering runs the airline catering assistant: an interactive chat,
// one-shot questions, stock count approvals, knowledge ingestion and the
// HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	userID     string
	station    string
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:   "catering",
	Short: "Airline catering management assistant",
	Long: `Catering answers questions about flights, meal orders, stock counts and
ERP records, approves stock counts against the ERP, and searches the
catering knowledge base.

Configuration is read from .env, an optional YAML file (--config or
CATERING_CONFIG) and the environment.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	for _, cmd := range []*cobra.Command{chatCmd, askCmd} {
		cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID for the session (default EMP123)")
		cmd.Flags().StringVar(&station, "station", "", "Override the accessible stations of the session")
		cmd.Flags().StringVar(&serverURL, "server", "", "Talk to a running server instead of an in-process assistant")
	}
	approveCmd.Flags().StringVar(&serverURL, "server", "", "Run the approval on a running server")
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	treeCmd.Flags().Bool("json", false, "Print the full introspection as JSON")
	ingestCmd.Flags().String("source", "", "Source name recorded with the chunks (default the file name)")

	rootCmd.AddCommand(chatCmd, askCmd, approveCmd, ingestCmd, serveCmd, treeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
