package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/ichi0g0y/twitch-fanscore/internal/fanscore"
	"github.com/ichi0g0y/twitch-fanscore/internal/version"
	"github.com/spf13/cobra"
)

func newUserCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "user <user-id>",
		Short: "Show a viewer's score, level and tickets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				u, err := a.fans.Lookup(ctx, userID)
				if err != nil {
					return err
				}
				tickets, err := a.wheel.Tickets(ctx, userID)
				if err != nil {
					return err
				}
				keeps, err := a.wheel.KeepItems(ctx, userID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				name := u.Nickname
				if name == "" {
					name = "-"
				}
				fmt.Fprintf(out, "user: %s (%s)\n", u.UserID, name)
				fmt.Fprintf(out, "level: %d\n", u.Level)
				fmt.Fprintf(out, "exp: %d (next level at %d)\n", u.Exp, fanscore.LevelThreshold(u.Level+1))
				fmt.Fprintf(out, "score: %d\n", u.Score)
				fmt.Fprintf(out, "chats: %d likes: %d gifts: %d\n", u.ChatCount, u.LikeCount, u.SpoonCount)
				fmt.Fprintf(out, "lotto tickets: %d\n", u.LotteryTickets)

				ids := make([]string, 0, len(tickets))
				for id := range tickets {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				for _, id := range ids {
					fmt.Fprintf(out, "roulette tickets: %s x%d\n", id, tickets[id])
				}
				for i, k := range keeps {
					fmt.Fprintf(out, "keep %d: %s x%d (%s)\n", i+1, k.Label, k.Count, k.TemplateName)
				}
				return nil
			})
		},
	}
}

func newGrantCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Adjust a viewer's tickets or exp",
		Long: `Adjust a viewer's tickets or exp by a signed delta, e.g. "grant lotto u1 -2".
Flags go before the user id; everything after it is read as arguments.`,
	}

	cmd.AddCommand(positional(&cobra.Command{
		Use:   "lotto <user-id> <delta>",
		Short: "Add (or remove with a negative delta) lotto tickets",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := parseDelta(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				a.fans.RecordLotteryTicketChange(args[0], delta)
				n, err := a.fans.LotteryTickets(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d lotto tickets\n", args[0], n)
				return nil
			})
		},
	}))

	cmd.AddCommand(positional(&cobra.Command{
		Use:   "exp <user-id> <delta>",
		Short: "Add exp directly, bypassing score",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := parseDelta(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				a.fans.RecordDirectExp(args[0], delta)
				u, err := a.fans.Lookup(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is Lv.%d with %d exp\n", args[0], u.Level, u.Exp)
				return nil
			})
		},
	}))

	cmd.AddCommand(positional(&cobra.Command{
		Use:   "roulette <user-id> <template-id> <delta>",
		Short: "Issue roulette tickets for a template",
		Long:  "Auto-run templates spin the new balance immediately, as they do when tickets are issued live.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := parseDelta(args[2])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				res, err := a.wheel.IssueTickets(ctx, args[0], "", args[1], delta)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d tickets for %s\n", args[0], res.Balance, res.TemplateName)
				return nil
			})
		},
	}))

	return cmd
}

// positional stops flag parsing at the first argument so negative deltas are not
// mistaken for shorthand flags.
func positional(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func parseDelta(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("delta must be a non-zero integer, got %q", s)
	}
	return n, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
