package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "webserver",
	Short: "Device ingestion API",
	Long: `webserver accepts record batches and files from registered devices,
stores every device's records in its own per-category tables and serves
them back to the device and to operators.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// @title Device Ingest API
// @version 1.0
// @description Per-device record ingestion with credential checks and rate limiting

// @host localhost:3000
// @BasePath /api

// @securityDefinitions.apikey DeviceAuth
// @in header
// @name Authorization
// @description "Bearer <apiKey>:<deviceId>"

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the admin JWT.

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, hashKeyCmd)
}
