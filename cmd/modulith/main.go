package main

import (
	"fmt"
	"os"

	"github.com/ncobase/modulith/cmd/modulith/commands"
)

func main() {
	rootCmd := commands.NewRootCmd()
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
