package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/krivanek/rollcall/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the Rollcall API server.
The server manages registered identities, runtime tuning and attendance
sessions, and streams session events to clients over SSE.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (defaults to PORT env or 8080)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	rosters, err := app.rosterSource()
	if err != nil {
		return err
	}

	port := mustGetInt(cmd, "port")
	if port == 0 {
		port = app.cfg.Web.Port
	}
	host := mustGetString(cmd, "host")

	server := web.NewServer(web.Deps{
		Tuning:          app.tuning,
		Gallery:         app.gallery,
		Store:           app.galleryStore,
		Enroller:        app.enroller(),
		Rosters:         rosters,
		Recorder:        app.attendance,
		Pipeline:        app.pipeline(),
		SessionDuration: time.Duration(app.cfg.Tuning.SessionMinutes) * time.Minute,
	}, port, host)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Rollcall API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
