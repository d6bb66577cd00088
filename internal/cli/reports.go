package cli

import (
	"fmt"
	"io"
	"math"
	"os/signal"
	"syscall"
	"time"

	"github.com/malbeclabs/blockprop/config"
	"github.com/malbeclabs/blockprop/internal/provider"
	"github.com/malbeclabs/blockprop/internal/stats"
	"github.com/spf13/cobra"
)

type BlockArrivalCmd struct{}

func NewBlockArrivalCmd() *BlockArrivalCmd {
	return &BlockArrivalCmd{}
}

func (c *BlockArrivalCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block-arrival",
		Short: "Report block propagation for one day by client and country",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions(cmd)
			if err != nil {
				return err
			}
			dateStr, err := cmd.Flags().GetString("date")
			if err != nil {
				return fmt.Errorf("failed to get date flag: %w", err)
			}
			showCDF, err := cmd.Flags().GetBool("cdf")
			if err != nil {
				return fmt.Errorf("failed to get cdf flag: %w", err)
			}

			req := provider.Request{Network: opts.Network, ForceRefresh: opts.ForceRefresh}
			if dateStr != "" {
				if req.Date, err = parseDate(dateStr); err != nil {
					return err
				}
			}

			log := newLogger(cmd.ErrOrStderr(), opts.Verbose)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			s, err := newStack(ctx, log, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.provider.BlockArrival(ctx, req)
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printBlockArrival(cmd.OutOrStdout(), report, showCDF)
			return nil
		},
	}

	cmd.Flags().String("date", "", "UTC date to analyze (YYYY-MM-DD), defaults to three days ago")
	cmd.Flags().Bool("cdf", false, "print the bucketed CDF points")

	return cmd
}

type NodeCmd struct{}

func NewNodeCmd() *NodeCmd {
	return &NodeCmd{}
}

func (c *NodeCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Report the activity and propagation of one node",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions(cmd)
			if err != nil {
				return err
			}
			nodeID, err := cmd.Flags().GetString("node")
			if err != nil {
				return fmt.Errorf("failed to get node flag: %w", err)
			}
			windowStr, err := cmd.Flags().GetString("window")
			if err != nil {
				return fmt.Errorf("failed to get window flag: %w", err)
			}
			if nodeID == "" {
				return fmt.Errorf("node is required")
			}
			window, err := config.ParseTimeWindow(windowStr)
			if err != nil {
				return err
			}

			log := newLogger(cmd.ErrOrStderr(), opts.Verbose)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			s, err := newStack(ctx, log, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.provider.Node(ctx, provider.NodeRequest{
				Network:      opts.Network,
				NodeID:       nodeID,
				Window:       window,
				ForceRefresh: opts.ForceRefresh,
				OnProgress: func(fraction float64) {
					log.Debug("node progress", "fraction", fraction)
				},
			})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printNode(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().String("node", "", "node id, the last segment of the sentry client name")
	cmd.Flags().String("window", string(config.DefaultTimeWindow), "trailing window ending yesterday (7d, 31d, 90d)")

	return cmd
}

func printBlockArrival(w io.Writer, r *provider.BlockArrivalReport, showCDF bool) {
	fmt.Fprintln(w, "Network:", r.Network)
	fmt.Fprintln(w, "Date:", r.Date.Format(time.DateOnly))
	fmt.Fprintln(w, "Unique blocks:", r.Summary.UniqueBlocks)
	fmt.Fprintln(w, "Observations:", r.Summary.TotalObservations)
	fmt.Fprintln(w, "Observations per block:", fmt.Sprintf("%.2f", r.Summary.AvgObservationsPerBlock))
	fmt.Fprintln(w, "Median of block medians (ms):", ms(r.Summary.MedianOfBlockMedians))
	fmt.Fprintln(w, "Slow threshold (ms):", ms(r.SlowThresholdMs))
	fmt.Fprintln(w, "* Propagation is capped at 6000ms")

	table := newTable(w, "Percentile", "Block min\n(ms)")
	for _, p := range r.Summary.MinPropagation {
		table.Append([]string{p.Name, ms(p.Value)})
	}
	table.Render()

	table = newTable(w, "Hour\n(UTC)", "Mean min\n(ms)", "Median min\n(ms)", "P90 min\n(ms)", "Blocks\n(#)")
	for _, h := range r.Hourly {
		table.Append([]string{
			fmt.Sprintf("%02d", h.Hour),
			ms(h.MeanMinMs),
			ms(h.MedianMinMs),
			ms(h.P90MinMs),
			fmt.Sprintf("%d", h.BlockCount),
		})
	}
	table.Render()
	if math.IsNaN(r.Correlation.R) {
		fmt.Fprintln(w, "Block count vs median correlation: n/a")
	} else {
		fmt.Fprintf(w, "Block count vs median correlation: %.3f (%s)\n", r.Correlation.R, r.Correlation.Strength)
	}

	for _, e := range []struct {
		title  string
		report *provider.EntityReport
	}{
		{"Clients", r.Clients},
		{"Countries", r.Countries},
	} {
		if e.report == nil {
			continue
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, e.title+":")
		printEntityReport(w, e.report, showCDF)
	}
}

func printEntityReport(w io.Writer, r *provider.EntityReport, showCDF bool) {
	table := newTable(w,
		"Entity",
		"Mean\n(ms)", "Median\n(ms)", "P95\n(ms)",
		"Samples\n(#)", "Slow\n(%)", "Comparable",
	)
	for _, p := range r.Performance {
		table.Append([]string{
			p.Entity,
			ms(p.MeanMs),
			ms(p.MedianMs),
			ms(p.P95Ms),
			fmt.Sprintf("%d", p.SampleCount),
			fmt.Sprintf("%.1f%%", p.SlowPercentage),
			fmt.Sprintf("%t", p.Comparable),
		})
	}
	table.Render()

	table = newTable(w, "Entity", "P50\n(ms)", "P90\n(ms)", "P99\n(ms)", "Samples\n(#)")
	for _, m := range r.Markers {
		table.Append([]string{m.Entity, ms(m.P50), ms(m.P90), ms(m.P99), fmt.Sprintf("%d", m.SampleCount)})
	}
	table.Render()

	if !showCDF {
		return
	}
	table = newTable(w, "Entity", "Bucket\n(ms)", "Probability")
	prev := ""
	for _, p := range r.CDF {
		entity := p.Entity
		if entity == prev {
			entity = ""
		}
		prev = p.Entity
		table.Append([]string{entity, fmt.Sprintf("%.0f", p.BucketMs), fmt.Sprintf("%.4f", p.Probability)})
	}
	table.Render()
}

func printNode(w io.Writer, r *provider.NodeReport) {
	o := r.Overview
	fmt.Fprintln(w, "Network:", r.Network)
	fmt.Fprintln(w, "Dates:", r.Start.Format(time.DateOnly), "-", r.End.Format(time.DateOnly))
	fmt.Fprintln(w, "Node:", o.NodeID)
	fmt.Fprintln(w, "User:", orDefault(o.Username, "Unknown"))
	fmt.Fprintln(w, "Client:", orDefault(o.Implementation, "Unknown"))
	fmt.Fprintln(w, "Version:", orDefault(o.Version, "Unknown"))
	fmt.Fprintln(w, "Location:", orDefault(o.Location, "Location Redacted"))
	fmt.Fprintln(w, "Network provider:", orDefault(o.ASOrganization, "ASN Redacted"))
	fmt.Fprintln(w, "Events:", o.Events)

	printDistribution(w, r.Propagation)

	table := newTable(w, "Date", "Events\n(#)")
	for _, d := range r.Timeline {
		table.Append([]string{d.Date.Format(time.DateOnly), fmt.Sprintf("%d", d.Events)})
	}
	table.Render()
}

func printDistribution(w io.Writer, d stats.Distribution) {
	table := newTable(w, "Min\n(ms)", "Mean\n(ms)", "Median\n(ms)", "P90\n(ms)")
	table.Append([]string{ms(d.MinMs), ms(d.MeanMs), ms(d.MedianMs), ms(d.P90Ms)})
	table.Render()
}
