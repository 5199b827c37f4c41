package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-booking/internal/app"
	"github.com/jwalitptl/clinic-booking/internal/config"
	"github.com/jwalitptl/clinic-booking/internal/handler"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/service/appointment"
)

// openFunc builds a scheduler for one command run and returns its cleanup.
type openFunc func(ctx context.Context, configDir string) (*appointment.Service, func() error, error)

func openService(ctx context.Context, configDir string) (*appointment.Service, func() error, error) {
	var paths []string
	if configDir != "" {
		paths = append(paths, configDir)
	}
	cfg, err := config.LoadConfig(paths...)
	if err != nil {
		return nil, nil, err
	}
	lg := app.NewLogger(cfg.Log, os.Stderr)

	schedCfg, err := app.SchedulerConfig(cfg.Schedule)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := app.Catalog(cfg)
	if err != nil {
		return nil, nil, err
	}
	storage, err := app.OpenStorage(ctx, cfg, catalog, schedCfg.Location, lg, nil)
	if err != nil {
		return nil, nil, err
	}
	svc := appointment.NewService(schedCfg, storage.Repo, catalog, appointment.WithLogger(lg.With("bookingctl")))
	return svc, storage.Close, nil
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(openService).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open openFunc) *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:          "bookingctl",
		Short:        "Inspect clinic bookings from the command line",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "directory holding config.yml")

	// withService opens the scheduler around a command body.
	withService := func(run func(cmd *cobra.Command, svc *appointment.Service) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := open(cmd.Context(), configDir)
			if err != nil {
				return err
			}
			defer closeFn()
			return run(cmd, svc)
		}
	}

	rootCmd.AddCommand(doctorsCmd(withService))
	rootCmd.AddCommand(slotsCmd(withService))
	rootCmd.AddCommand(exportCmd(withService))
	rootCmd.AddCommand(tokensCmd(withService))
	rootCmd.AddCommand(countsCmd(withService))
	return rootCmd
}

type wrapper func(run func(cmd *cobra.Command, svc *appointment.Service) error) func(*cobra.Command, []string) error

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func dateFlag(cmd *cobra.Command, svc *appointment.Service, def bool) (model.Date, error) {
	value, _ := cmd.Flags().GetString("date")
	fallback := model.Date{}
	if def {
		fallback = svc.Today()
	}
	return handler.ParseDate(value, fallback)
}

func doctorsCmd(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "doctors",
		Short: "List the doctor roster",
		RunE: with(func(cmd *cobra.Command, svc *appointment.Service) error {
			tw := table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tDEPARTMENT\tHOURS")
			for _, d := range svc.Doctors() {
				hours := ""
				for i, w := range d.WorkingHours {
					if i > 0 {
						hours += ", "
					}
					hours += w.Start.String() + "-" + w.End.String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Department, hours)
			}
			return tw.Flush()
		}),
	}
}

func slotsCmd(with wrapper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show a doctor's slot grid for a day",
		RunE: with(func(cmd *cobra.Command, svc *appointment.Service) error {
			doctorID, _ := cmd.Flags().GetString("doctor")
			if _, err := svc.Doctor(doctorID); err != nil {
				return err
			}
			date, err := dateFlag(cmd, svc, true)
			if err != nil {
				return err
			}

			tw := table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "TIME\tBOOKED\tREMAINING\tSTATUS")
			for _, s := range svc.GetAvailableSlots(cmd.Context(), doctorID, date) {
				status := "open"
				if !s.Available {
					status = "full"
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", s.Time, s.Booked, s.Remaining, status)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().String("doctor", "", "doctor id")
	cmd.Flags().String("date", "", "day as YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("doctor")
	return cmd
}

func exportCmd(with wrapper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write bookings as CSV",
		RunE: with(func(cmd *cobra.Command, svc *appointment.Service) error {
			date, err := dateFlag(cmd, svc, false)
			if err != nil {
				return err
			}
			doctorID, _ := cmd.Flags().GetString("doctor")
			query, _ := cmd.Flags().GetString("query")
			out, _ := cmd.Flags().GetString("out")

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			return svc.ExportCSV(cmd.Context(), w, model.BookingFilter{DoctorID: doctorID, Date: date, Query: query})
		}),
	}
	cmd.Flags().String("date", "", "only this day, YYYY-MM-DD")
	cmd.Flags().String("doctor", "", "only this doctor id")
	cmd.Flags().String("query", "", "patient name or phone fragment")
	cmd.Flags().StringP("out", "o", "-", "output file")
	return cmd
}

func tokensCmd(with wrapper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Re-derive a doctor's tokens for a day and flag drift",
		RunE: with(func(cmd *cobra.Command, svc *appointment.Service) error {
			doctorID, _ := cmd.Flags().GetString("doctor")
			date, err := dateFlag(cmd, svc, true)
			if err != nil {
				return err
			}
			report, err := svc.RederiveTokens(cmd.Context(), doctorID, date)
			if err != nil {
				return err
			}

			tw := table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "TIME\tPATIENT\tSTORED\tDERIVED\t")
			for _, c := range report.Checks {
				mark := ""
				if c.Drift {
					mark = "drift"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.Time, c.PatientName, c.Stored, c.Derived, mark)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d tokens drifted (%s)\n", report.Drifted, len(report.Checks), report.Strategy)
			return nil
		}),
	}
	cmd.Flags().String("doctor", "", "doctor id")
	cmd.Flags().String("date", "", "day as YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("doctor")
	return cmd
}

func countsCmd(with wrapper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Count tokens issued per doctor",
		RunE: with(func(cmd *cobra.Command, svc *appointment.Service) error {
			date, err := dateFlag(cmd, svc, false)
			if err != nil {
				return err
			}
			counts, err := svc.TokenCounts(cmd.Context(), date)
			if err != nil {
				return err
			}
			tw := table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "DOCTOR\tDEPARTMENT\tTOKENS")
			for _, c := range counts {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", c.DoctorName, c.Department, c.Count)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().String("date", "", "only this day, YYYY-MM-DD")
	return cmd
}
