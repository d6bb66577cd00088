package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/malbeclabs/blockprop/config"
	"github.com/malbeclabs/blockprop/internal/assembler"
	"github.com/malbeclabs/blockprop/internal/dataset"
	"github.com/spf13/cobra"
)

type DayCmd struct{}

func NewDayCmd() *DayCmd {
	return &DayCmd{}
}

func (c *DayCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "day",
		Short: "Fetch one day of block events",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions(cmd)
			if err != nil {
				return err
			}
			dateStr, err := cmd.Flags().GetString("date")
			if err != nil {
				return fmt.Errorf("failed to get date flag: %w", err)
			}
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}

			log := newLogger(cmd.ErrOrStderr(), opts.Verbose)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			s, err := newStack(ctx, log, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			date := s.provider.Today().AddDate(0, 0, -1)
			if dateStr != "" {
				if date, err = parseDate(dateStr); err != nil {
					return err
				}
			}

			frame, err := s.provider.FetchDay(ctx, opts.Network, date, opts.ForceRefresh)
			if err != nil {
				return err
			}
			if err := export(ctx, s, out, frame); err != nil {
				return err
			}

			summary := frameSummary{
				Network: opts.Network,
				Start:   config.Day(date),
				End:     config.Day(date),
				Rows:    frame.NumRows(),
				Schema:  frame.Schema().String(),
				Out:     out,
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			printFrameSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	cmd.Flags().String("date", "", "UTC date to fetch (YYYY-MM-DD), defaults to yesterday")
	cmd.Flags().String("out", "", "path to write the partition to as parquet")

	return cmd
}

type RangeCmd struct{}

func NewRangeCmd() *RangeCmd {
	return &RangeCmd{}
}

func (c *RangeCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Fetch a date range of block events, skipping unpublished days",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions(cmd)
			if err != nil {
				return err
			}
			startStr, err := cmd.Flags().GetString("start")
			if err != nil {
				return fmt.Errorf("failed to get start flag: %w", err)
			}
			endStr, err := cmd.Flags().GetString("end")
			if err != nil {
				return fmt.Errorf("failed to get end flag: %w", err)
			}
			windowStr, err := cmd.Flags().GetString("window")
			if err != nil {
				return fmt.Errorf("failed to get window flag: %w", err)
			}
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}

			log := newLogger(cmd.ErrOrStderr(), opts.Verbose)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			s, err := newStack(ctx, log, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			var start, end time.Time
			switch {
			case startStr != "" || endStr != "":
				if startStr == "" || endStr == "" {
					return fmt.Errorf("both start and end are required")
				}
				if start, err = parseDate(startStr); err != nil {
					return err
				}
				if end, err = parseDate(endStr); err != nil {
					return err
				}
			default:
				window, err := config.ParseTimeWindow(windowStr)
				if err != nil {
					return err
				}
				start, end = window.Range(s.provider.Today())
			}

			r, err := s.provider.FetchRange(ctx, opts.Network, start, end, opts.ForceRefresh, func(fraction float64) {
				log.Debug("range progress", "fraction", fraction)
			})
			if err != nil {
				return err
			}
			if !r.Absent() {
				if err := export(ctx, s, out, r.Frame); err != nil {
					return err
				}
			}

			summary := frameSummary{
				Network: opts.Network,
				Start:   r.Start,
				End:     r.End,
				Rows:    r.Frame.NumRows(),
				Days:    rangeDays(r.Days),
			}
			if !r.Absent() {
				summary.Schema = r.Frame.Schema().String()
				summary.Out = out
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			printFrameSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	cmd.Flags().String("start", "", "first UTC date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "last UTC date (YYYY-MM-DD)")
	cmd.Flags().String("window", string(config.DefaultTimeWindow), "trailing window ending yesterday when no dates are given (7d, 31d, 90d)")
	cmd.Flags().String("out", "", "path to write the concatenated range to as parquet")

	return cmd
}

type frameSummary struct {
	Network string     `json:"network"`
	Start   time.Time  `json:"start"`
	End     time.Time  `json:"end"`
	Rows    int        `json:"rows"`
	Schema  string     `json:"schema,omitempty"`
	Out     string     `json:"out,omitempty"`
	Days    []rangeDay `json:"days,omitempty"`
}

type rangeDay struct {
	Date   time.Time `json:"date"`
	Status string    `json:"status"`
	Origin string    `json:"origin,omitempty"`
	Rows   int       `json:"rows"`
	Error  string    `json:"error,omitempty"`
}

func rangeDays(days []assembler.Day) []rangeDay {
	out := make([]rangeDay, len(days))
	for i, d := range days {
		out[i] = rangeDay{Date: d.Date, Status: d.Status.String(), Origin: string(d.Origin), Rows: d.Rows}
		if d.Err != nil {
			out[i].Error = d.Err.Error()
		}
	}
	return out
}

func export(ctx context.Context, s *stack, path string, frame *dataset.Frame) error {
	if path == "" {
		return nil
	}
	if err := s.codec.EncodeFile(ctx, path, frame); err != nil {
		return fmt.Errorf("failed to export to %s: %w", path, err)
	}
	return nil
}

func printFrameSummary(w io.Writer, s frameSummary) {
	fmt.Fprintln(w, "Network:", s.Network)
	if s.Start.Equal(s.End) {
		fmt.Fprintln(w, "Date:", s.Start.Format(time.DateOnly))
	} else {
		fmt.Fprintln(w, "Dates:", s.Start.Format(time.DateOnly), "-", s.End.Format(time.DateOnly))
	}
	fmt.Fprintln(w, "Rows:", s.Rows)
	if s.Schema != "" {
		fmt.Fprintln(w, "Columns:", s.Schema)
	}
	if s.Out != "" {
		fmt.Fprintln(w, "Written to:", s.Out)
	}
	if len(s.Days) == 0 {
		return
	}

	table := newTable(w, "Date", "Status", "Origin", "Rows", "Error")
	for _, d := range s.Days {
		table.Append([]string{
			d.Date.Format(time.DateOnly),
			d.Status,
			d.Origin,
			fmt.Sprintf("%d", d.Rows),
			d.Error,
		})
	}
	table.Render()
}
