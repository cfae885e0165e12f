package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/roster"
	"github.com/kozaktomas/rollcall/internal/session"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <photo>",
	Short: "Take attendance for one lecture from a photo",
	Long: `Run a whole attendance session from the terminal.

The photo is sent to the recognition service, the proposed attendance is
printed, and --set overrides are applied by student id, roll number or name.
Nothing is written unless --yes is given.

Examples:
  rollcall recognize class.jpg --class CS-3A --subject Algorithms --faculty f1
  rollcall recognize class.jpg --class CS-3A --subject Algorithms --faculty f1 \
    --set "Bob Dvorak=late" --set 17=absent --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	addLectureFlags(recognizeCmd)
	recognizeCmd.Flags().StringSlice("set", nil, "Override a decision as student=status (repeatable)")
	recognizeCmd.Flags().Bool("supersede", false, "Cancel a running session for the same lecture")
	recognizeCmd.Flags().Bool("yes", false, "Write the attendance without asking")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	key, err := lectureKeyFromFlags(cmd, time.Now())
	if err != nil {
		return err
	}

	overrides, err := parseOverrides(mustGetStringSlice(cmd, "set"))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading photo: %w", err)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	svc, err := newServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	sess, created, err := svc.registry.Start(ctx, key, session.StartOptions{Supersede: mustGetBool(cmd, "supersede")})
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	if !created {
		logger.Info("resuming session", zap.String("session_id", sess.ID()))
	}

	fmt.Printf("Recognizing faces in %s...\n", args[0])
	snap, err := sess.SubmitImage(ctx, data)
	if err != nil {
		return fmt.Errorf("recognition failed: %w", err)
	}
	printSummary(os.Stdout, snap)

	for _, o := range overrides {
		student, err := roster.Find(sess.Roster(), o.query)
		if err != nil {
			return fmt.Errorf("--set %s: %w", o.query, err)
		}
		if _, err := sess.SetStatus(student.ID, o.status); err != nil {
			return fmt.Errorf("--set %s: %w", o.query, err)
		}
	}

	decisions := sess.Decisions()
	fmt.Println()
	printDecisions(os.Stdout, decisions)

	if !mustGetBool(cmd, "yes") {
		_ = sess.Cancel()
		fmt.Println("\nNothing written. Run again with --yes to save the attendance.")
		return nil
	}

	bar := progressbar.NewOptions(len(decisions),
		progressbar.OptionSetDescription("Saving attendance"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)
	result, err := sess.Confirm(ctx, func(done, total int) {
		_ = bar.Set(done)
	})
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("saving attendance: %w", err)
	}

	fmt.Printf("Saved %d records (%d face recognition, %d manual)\n",
		len(result.Succeeded), result.FaceRecognition, result.Manual)
	if !result.OK() {
		for _, perr := range result.Errors() {
			fmt.Printf("  FAILED %v\n", perr)
		}
		return fmt.Errorf("%d of %d records were not saved", len(result.Failed), len(decisions))
	}
	return nil
}

type override struct {
	query  string
	status attendance.Status
}

// parseOverrides parses student=status pairs. The split is on the last '='
// so names may contain one.
func parseOverrides(values []string) ([]override, error) {
	out := make([]override, 0, len(values))
	for _, v := range values {
		i := strings.LastIndex(v, "=")
		if i <= 0 || i == len(v)-1 {
			return nil, fmt.Errorf("invalid --set %q: expected student=status", v)
		}
		status, err := attendance.ParseStatus(strings.TrimSpace(v[i+1:]))
		if err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", v, err)
		}
		query := strings.TrimSpace(v[:i])
		if query == "" {
			return nil, errors.New("invalid --set: empty student")
		}
		out = append(out, override{query: query, status: status})
	}
	return out, nil
}

func printSummary(w io.Writer, snap *session.Snapshot) {
	if snap.Correction {
		fmt.Fprintln(w, "This lecture already has saved attendance; confirming will overwrite it.")
	}
	if snap.Summary == nil {
		return
	}
	s := snap.Summary
	fmt.Fprintf(w, "Faces detected: %d, present: %d, late: %d, absent: %d\n", s.FacesDetected, s.Present, s.Late, s.Absent)
	if s.Unknown+s.Unmatched+s.BelowThreshold > 0 {
		fmt.Fprintf(w, "Not counted: %d unknown, %d unmatched, %d below threshold\n", s.Unknown, s.Unmatched, s.BelowThreshold)
	}
}

func printDecisions(w io.Writer, decisions []attendance.Decision) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLL\tSTUDENT\tSTATUS\tSOURCE\tCONFIDENCE")
	fmt.Fprintln(tw, "----\t-------\t------\t------\t----------")
	for _, d := range decisions {
		confidence := "-"
		if d.Confidence != nil {
			confidence = fmt.Sprintf("%.2f", *d.Confidence)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.RollNumber, d.StudentName, d.Status, d.Source, confidence)
	}
	_ = tw.Flush()
}
