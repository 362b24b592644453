package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitalsd/vitalsd/ingestservice"
)

var rootCmd = &cobra.Command{
	Use:   "vitalsd",
	Short: "Health telemetry ingestion service",
}

func main() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ingestservice.Run()
		},
	}
	rootCmd.AddCommand(serveCmd, newKeygenCmd(), newHashkeyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var exitErr *ingestservice.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
