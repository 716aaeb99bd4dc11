package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// @title           ProcureFlow API
// @version         1.0
// @description     Purchase request intake, manual review and workflow control for the procurement engine.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "procureflow",
		Short: "Procurement request, approval and order workflow service",
		Long: `procureflow serves the purchase request API and runs the workflow engine that
auto-approves or escalates requests, generates purchase orders and broadcasts every
change to websocket subscribers.

Configuration is read from configs/.env and the environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newScanCommand())
	root.AddCommand(newSeedCommand())
	return root
}
