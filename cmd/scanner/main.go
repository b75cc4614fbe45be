package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "scanner",
	Short:        "Identify Pokemon cards from photos and track their prices",
	Long:         "scanner matches card photos against a reference index, falls back to OCR\nwhen the visual match is not confident, resolves the card against the\nPokemon TCG API and records flattened pricing.",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Set log flags for better debugging
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stderr)
}
