package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pbaille/coffeechat/internal/api"
	"github.com/pbaille/coffeechat/internal/bot"
	"github.com/pbaille/coffeechat/internal/discord"
	"github.com/pbaille/coffeechat/internal/negotiator"
	"github.com/pbaille/coffeechat/internal/notify"
	"github.com/pbaille/coffeechat/internal/room"
	"github.com/pbaille/coffeechat/internal/summarizer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	var (
		addr       string
		noRegister bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the gateway and run the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()
			cfg, logger := e.cfg, e.logger

			if err := cfg.RequireDiscord(); err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}

			session, err := discord.NewSession(cfg.Discord.Token)
			if err != nil {
				return err
			}
			platform := discord.NewPlatform(session)
			audit := discord.NewAudit(platform, cfg.Discord.MatchLogChannelID, cfg.Discord.ErrorLogChannelID, logger)

			gen, err := summarizer.NewGenerator(cfg.Summarizer)
			if err != nil {
				return err
			}
			if gen == nil {
				logger.Warn("no summarizer provider configured, profiles use keyword extraction")
			}

			prov := room.New(platform, e.store, nil, room.Options{
				Retention:     cfg.Room.Retention,
				SweepInterval: cfg.Room.SweepInterval,
				Location:      cfg.Location(),
				CategoryID:    cfg.Discord.RoomCategoryID,
			}, logger, e.metrics)

			neg := negotiator.New(negotiator.Config{
				Store:       e.store,
				Gateway:     notify.NewFallback(platform, cfg.Discord.FallbackChannelID, logger),
				Provisioner: prov,
				Events:      audit,
				Logger:      logger,
				Metrics:     e.metrics,
			})
			restored, err := neg.Rehydrate(ctx)
			if err != nil {
				return fmt.Errorf("rehydrate negotiations: %w", err)
			}
			logger.Info("negotiations restored", zap.Int("count", restored))

			svc := bot.New(bot.Config{
				Store:            e.store,
				Engine:           e.engine(),
				Negotiator:       neg,
				Summarizer:       summarizer.New(gen, cfg.Summarizer.Timeout, logger, e.metrics),
				LoggedChannelIDs: cfg.Discord.LoggedChannelIDs,
				Logger:           logger,
				Metrics:          e.metrics,
			})

			router := discord.NewRouter(session, discord.RouterConfig{
				Service:            svc,
				Platform:           platform,
				Audit:              audit,
				StartHereChannelID: cfg.Discord.StartHereChannelID,
				Logger:             logger,
			})
			router.Attach(ctx, session)

			if err := session.Open(); err != nil {
				return fmt.Errorf("open gateway: %w", err)
			}
			if !noRegister {
				if cmds, err := discord.Register(session, cfg.Discord.AppID, cfg.Discord.GuildID); err != nil {
					logger.Warn("command registration failed", zap.Error(err))
				} else {
					logger.Info("commands registered", zap.Int("count", len(cmds)), zap.String("guild_id", cfg.Discord.GuildID))
				}
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return prov.Run(gctx) })
			if cfg.HTTP.Addr != "" {
				srv := api.New(e.store, svc, e.metrics, logger, cfg.HTTP.Addr)
				g.Go(func() error { return srv.Run(gctx) })
			}
			runErr := g.Wait()

			logger.Info("shutting down")
			if err := session.Close(); err != nil {
				logger.Warn("gateway close failed", zap.Error(err))
			}
			router.Wait()
			prov.Stop()
			return runErr
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "ops HTTP address (overrides HTTP_ADDR, empty disables)")
	cmd.Flags().BoolVar(&noRegister, "no-register", false, "skip slash command registration at startup")
	return cmd
}
