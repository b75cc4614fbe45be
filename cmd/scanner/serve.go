package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	httpDelivery "github.com/cardlens/scanner/internal/delivery/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the identification HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Printf("Starting cardlens scanner v1.0.0")
	log.Printf("Environment: %s", a.cfg.Server.Environment)
	log.Printf("Cache: %s (max age %s)", a.cfg.Cache.Path, a.cfg.Cache.MaxAge)

	handler := httpDelivery.NewHandler(a.identify, a.resolver, "")
	router := httpDelivery.SetupRouter(a.cfg, handler)

	addr := fmt.Sprintf(":%s", a.cfg.Server.Port)
	log.Printf("Server listening on %s", addr)
	return router.Run(addr)
}
