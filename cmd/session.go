package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/krivanek/rollcall/internal/pipeline"
	"github.com/krivanek/rollcall/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run one attendance session from the terminal",
	Long: `Run a single attendance session against a camera stream or a
directory of recorded frames. The session ends when the duration elapses,
the source dries up, or Ctrl+C is pressed; absences are inferred from the
roster at that point.`,
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(sessionCmd)

	sessionCmd.Flags().String("group", "", "Class group to load the roster for (required)")
	sessionCmd.Flags().String("source", "", "Frame source: MJPEG stream URL or image directory (required)")
	sessionCmd.Flags().Int("duration", 0, "Session duration in minutes (defaults to SESSION_MINUTES)")
	_ = sessionCmd.MarkFlagRequired("group")
	_ = sessionCmd.MarkFlagRequired("source")
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	rosters, err := app.rosterSource()
	if err != nil {
		return err
	}

	group := mustGetString(cmd, "group")
	ros, err := rosters.LoadRoster(ctx, group)
	if err != nil {
		return fmt.Errorf("loading roster for %s: %w", group, err)
	}
	fmt.Printf("Roster %s: %d expected\n", group, ros.Size())

	minutes := mustGetInt(cmd, "duration")
	if minutes == 0 {
		minutes = app.cfg.Tuning.SessionMinutes
	}

	sess := session.New(group, ros, app.attendance, time.Duration(minutes)*time.Minute)

	sourceSpec := mustGetString(cmd, "source")
	source, err := pipeline.OpenSource(ctx, sourceSpec)
	if err != nil {
		return fmt.Errorf("opening frame source: %w", err)
	}
	defer source.Close()

	now := time.Now()
	if err := sess.Start(now); err != nil {
		return err
	}
	if err := app.attendance.CreateSession(ctx, sess.ID(), group, now); err != nil {
		return fmt.Errorf("recording session: %w", err)
	}
	fmt.Printf("Session %s started, running until %s\n", sess.ID(), sess.Deadline().Format(time.Kitchen))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nEnding session...")
		cancel()
	}()

	runner := pipeline.NewRunner(app.pipeline(), func(ctx context.Context, frame pipeline.Frame, results []pipeline.FaceResult) {
		for _, res := range results {
			if res.Outcome != pipeline.OutcomeMatched {
				continue
			}
			marked, err := sess.Observe(ctx, session.Observation{
				IdentityID: res.IdentityID,
				Confidence: res.Confidence,
				Quality:    res.Quality.Overall,
				Timestamp:  frame.CapturedAt,
				Live:       res.Live(),
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("observe %s: %v", res.IdentityID, err)
			}
			if marked {
				fmt.Printf("  present: %s (%s, confidence %.2f)\n", res.Name, res.IdentityID, res.Confidence)
			}
		}
	})

	runCtx, runCancel := context.WithDeadline(ctx, sess.Deadline())
	defer runCancel()

	if err := runner.Run(runCtx, source); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Printf("frame loop: %v", err)
	}

	endCtx, endCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer endCancel()

	endedAt := time.Now()
	if err := sess.End(endCtx, endedAt); err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	if err := app.attendance.CloseSession(endCtx, sess.ID(), endedAt); err != nil {
		log.Printf("closing session row: %v", err)
	}

	summary := sess.Summary()
	fmt.Printf("\nSession %s ended: %d present, %d absent of %d expected (%d frames, %d dropped)\n",
		summary.SessionID, summary.Present, summary.Absent, summary.Expected,
		runner.Processed(), runner.Dropped())
	return nil
}
