package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "meetsign",
	Short: "Face-based meeting check-in service",
	Long: `Meetsign runs a real-time face check-in service for meetings.
Kiosks stream camera frames over a WebSocket; the service matches each
frame against the meeting roster and records the first successful
sign-in per attendee.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
