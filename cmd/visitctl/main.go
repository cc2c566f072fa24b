// Command visitctl is the operator CLI: database migrations, trust score
// inspection, development tokens and effective configuration.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
