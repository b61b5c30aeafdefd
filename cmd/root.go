package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rollcall",
	Short: "Face recognition attendance engine",
	Long: `Rollcall watches a camera stream, recognizes registered faces and
marks attendance against a class roster. Recognition runs against an
in-memory gallery of face templates backed by PostgreSQL; rosters come
from the school information system.`,
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
