package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pbaille/coffeechat/internal/bot"
	"github.com/pbaille/coffeechat/internal/config"
	"github.com/pbaille/coffeechat/internal/discord"
	"github.com/pbaille/coffeechat/internal/domain"
	"github.com/pbaille/coffeechat/internal/logging"
	"github.com/pbaille/coffeechat/internal/metrics"
	"github.com/pbaille/coffeechat/internal/room"
	"github.com/pbaille/coffeechat/internal/similarity"
	"github.com/pbaille/coffeechat/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "coffeechat",
		Short:         "Community bot that pairs members for one-on-one coffee chats",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (environment variables override it)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(rankCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(matchesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env bundles what every subcommand needs
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector
	store   store.Store
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	s, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &env{cfg: cfg, logger: logger, metrics: metrics.New(), store: s}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("store close failed", zap.Error(err))
	}
	_ = e.logger.Sync()
}

func (e *env) engine() *similarity.Engine {
	var history similarity.HistoryReader
	if e.cfg.Matching.HistoryEnabled {
		history = e.store
	}
	return similarity.NewEngine(history, similarity.Options{
		HistoryWindow: e.cfg.Matching.HistoryWindow,
		Concurrency:   e.cfg.Matching.HistoryConcurrency,
	}, e.logger, e.metrics)
}

func registerCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register slash commands for the configured guild (or globally)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.RequireDiscord(); err != nil {
				return err
			}
			s, err := discord.NewSession(cfg.Discord.Token)
			if err != nil {
				return err
			}

			guildID := cfg.Discord.GuildID
			if global {
				guildID = ""
			}
			cmds, err := discord.Register(s, cfg.Discord.AppID, guildID)
			if err != nil {
				return err
			}

			scope := "globally"
			if guildID != "" {
				scope = "in guild " + guildID
			}
			fmt.Printf("Registered %d commands %s\n", len(cmds), scope)
			return nil
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "register globally instead of in GUILD_ID")
	return cmd
}

func rankCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "rank [guild-id] [member-id]",
		Short: "Preview the ranked candidates for a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			svc := bot.New(bot.Config{Store: e.store, Engine: e.engine(), Logger: e.logger, Metrics: e.metrics})
			ranked, err := svc.Candidates(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if len(ranked) == 0 {
				fmt.Println("No candidates in this guild yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MEMBER\tNAME\tSCORE\tINTEREST\tPURPOSE\tTAGS")
			for i, c := range ranked {
				if i >= limit {
					break
				}
				fmt.Fprintf(w, "%s\t%s\t%.3f\t%.3f\t%.3f\t%s\n",
					c.Profile.MemberID, truncate(c.Profile.Name, 24),
					c.Score, c.InterestScore, c.PurposeScore,
					strings.Join(c.Tags, ","))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of candidates to show")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim every expired coffee chat room once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.cfg.RequireDiscord(); err != nil {
				return err
			}
			s, err := discord.NewSession(e.cfg.Discord.Token)
			if err != nil {
				return err
			}

			prov := room.New(discord.NewPlatform(s), e.store, nil, room.Options{
				Retention:  e.cfg.Room.Retention,
				Location:   e.cfg.Location(),
				CategoryID: e.cfg.Discord.RoomCategoryID,
			}, e.logger, e.metrics)
			defer prov.Stop()

			res, err := prov.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Reclaimed %d rooms, %d still open, %d recovered, %d writes synced, %d pending\n",
				res.Reclaimed, res.Rescheduled, res.Recovered, res.Synced, res.Pending)
			return nil
		},
	}
}

func profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile [member-id]",
		Short: "Show a member's stored profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			p, err := e.store.GetProfile(ctx, args[0])
			if err != nil {
				return fmt.Errorf("profile %s: %w", args[0], err)
			}

			fmt.Printf("Member:    %s\n", p.MemberID)
			fmt.Printf("Guild:     %s\n", p.GuildID)
			fmt.Printf("Name:      %s\n", p.Name)
			fmt.Printf("Purpose:   %s\n", p.Purpose)
			fmt.Printf("Interests: %s\n", strings.Join(p.Interests, ", "))
			fmt.Printf("Intro:     %s\n", p.Intro)
			fmt.Printf("Updated:   %s\n", p.UpdatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func matchesCmd() *cobra.Command {
	var (
		statuses []string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "matches",
		Short: "List matches by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			want := make([]domain.MatchStatus, 0, len(statuses))
			for _, s := range statuses {
				st := domain.MatchStatus(s)
				if !st.Valid() {
					return fmt.Errorf("unknown status %q", s)
				}
				want = append(want, st)
			}

			matches, err := e.store.ListMatchesByStatus(ctx, want...)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(matches)
			}
			if len(matches) == 0 {
				fmt.Println("No matches.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tREQUESTER\tCANDIDATE\tROOM\tUPDATED")
			for _, m := range matches {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					m.ID, m.Status, m.RequesterID, m.CandidateID, orDash(m.RoomID),
					m.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s",
		[]string{string(domain.StatusProposed), string(domain.StatusCandAccepted), string(domain.StatusConfirmed)},
		"statuses to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
