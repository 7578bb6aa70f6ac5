package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "rpgd",
	Short:        "Role-play chat server",
	Long:         "rpgd serves the role-play chat API and runs queued turns from RabbitMQ.",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd, hashPasswordCmd)
}
