// Command fieldsync is the field-ops compliance engine CLI.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Errors are silenced on the command tree, so report here.
		printError("Error: %v", err)
		os.Exit(1)
	}
}
