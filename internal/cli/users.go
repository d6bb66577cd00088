package cli

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/malbeclabs/blockprop/config"
	"github.com/malbeclabs/blockprop/internal/provider"
	"github.com/malbeclabs/blockprop/internal/stats"
	"github.com/spf13/cobra"
)

type UsersCmd struct{}

func NewUsersCmd() *UsersCmd {
	return &UsersCmd{}
}

func (c *UsersCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List the sentry operators seen over a trailing window",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions(cmd)
			if err != nil {
				return err
			}
			windowStr, err := cmd.Flags().GetString("window")
			if err != nil {
				return fmt.Errorf("failed to get window flag: %w", err)
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

			report, err := s.provider.Users(ctx, provider.UsersRequest{
				Network:      opts.Network,
				Window:       window,
				ForceRefresh: opts.ForceRefresh,
				OnProgress: func(fraction float64) {
					log.Debug("users progress", "fraction", fraction)
				},
			})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printUsers(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().String("window", string(config.DefaultTimeWindow), "trailing window ending yesterday (7d, 31d, 90d)")

	return cmd
}

type UserCmd struct{}

func NewUserCmd() *UserCmd {
	return &UserCmd{}
}

func (c *UserCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Report the nodes and propagation of one sentry operator",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions(cmd)
			if err != nil {
				return err
			}
			username, err := cmd.Flags().GetString("user")
			if err != nil {
				return fmt.Errorf("failed to get user flag: %w", err)
			}
			windowStr, err := cmd.Flags().GetString("window")
			if err != nil {
				return fmt.Errorf("failed to get window flag: %w", err)
			}
			if username == "" {
				return fmt.Errorf("user is required")
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

			report, err := s.provider.User(ctx, provider.UserRequest{
				Network:      opts.Network,
				Username:     username,
				Window:       window,
				ForceRefresh: opts.ForceRefresh,
				OnProgress: func(fraction float64) {
					log.Debug("user progress", "fraction", fraction)
				},
			})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printUser(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().String("user", "", "username, the middle segment of the sentry client name")
	cmd.Flags().String("window", string(config.DefaultTimeWindow), "trailing window ending yesterday (7d, 31d, 90d)")

	return cmd
}

func printUsers(w io.Writer, r *provider.UsersReport) {
	fmt.Fprintln(w, "Network:", r.Network)
	fmt.Fprintln(w, "Dates:", r.Start.Format(time.DateOnly), "-", r.End.Format(time.DateOnly))
	fmt.Fprintln(w, "Users:", len(r.Usernames))

	table := newTable(w, "#", "User")
	for i, u := range r.Usernames {
		table.Append([]string{fmt.Sprintf("%d", i+1), u})
	}
	table.Render()
}

func printUser(w io.Writer, r *provider.UserReport) {
	o := r.Overview
	fmt.Fprintln(w, "Network:", r.Network)
	fmt.Fprintln(w, "Dates:", r.Start.Format(time.DateOnly), "-", r.End.Format(time.DateOnly))
	fmt.Fprintln(w, "User:", o.Username)
	fmt.Fprintln(w, "Nodes:", o.NodeCount)
	fmt.Fprintln(w, "Events:", o.Events)
	fmt.Fprintln(w, "Clients:", strings.Join(o.Implementations, ", "))
	fmt.Fprintln(w, "Versions:", strings.Join(o.Versions, ", "))
	if len(o.Locations) > 0 {
		fmt.Fprintln(w, "Locations:", strings.Join(o.Locations, ", "))
	} else {
		fmt.Fprintln(w, "Locations: Not available (redacted)")
	}

	table := newTable(w, "Node", "Events\n(#)", "Client", "Version", "Location", "Network provider")
	for _, n := range r.Nodes {
		table.Append([]string{
			n.NodeID,
			fmt.Sprintf("%d", n.Events),
			orDefault(n.Implementation, "Unknown"),
			orDefault(n.Version, "Unknown"),
			orDefault(n.Location, "Location Redacted"),
			orDefault(n.ASOrganization, "ASN Redacted"),
		})
	}
	table.Render()

	printDistribution(w, r.Propagation)
	printPercentiles(w, r.Propagation.Percentiles)
}

func printPercentiles(w io.Writer, ps []stats.Percentile) {
	if len(ps) == 0 {
		return
	}
	header := make([]string, len(ps))
	row := make([]string, len(ps))
	for i, p := range ps {
		header[i] = strings.ToUpper(p.Name) + "\n(ms)"
		row[i] = ms(p.Value)
	}
	table := newTable(w, header...)
	table.Append(row)
	table.Render()
}
