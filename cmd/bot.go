package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"bkam-rates/bot"
	"bkam-rates/scheduler"
)

func newBotCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "run the Telegram bot.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			log := a.log.Sugar()

			if a.cfg.Telegram.Token == "" {
				return errors.New("TELEGRAM_TOKEN environment variable is not set")
			}
			api, err := tgbotapi.NewBotAPI(a.cfg.Telegram.Token)
			if err != nil {
				return err
			}
			log.Infof("Authorized on account %s", api.Self.UserName)

			var botOpts []bot.Option
			if a.database != nil {
				botOpts = append(botOpts, bot.WithQueue(a.database))
			}
			b := bot.New(api, a.pipeline, a.cfg.Telegram, a.cfg.Log.File, a.log, botOpts...)

			if a.database != nil {
				if n, err := a.database.ResetInProgress(ctx); err != nil {
					log.Warnf("Failed to reset interrupted requests: %v", err)
				} else if n > 0 {
					log.Infof("Requeued %d interrupted requests", n)
				}

				sched := scheduler.NewScheduler(a.database, a.pipeline, b,
					a.cfg.Telegram.PollInterval(), a.cfg.Telegram.MinRunGap(), a.log)
				sched.Start(ctx)
				defer sched.Stop()
				log.Info("Scheduler started")
			} else {
				log.Info("No database configured, requests run inline")
			}

			// start from the latest update to skip ones sent while offline
			updateConfig := tgbotapi.NewUpdate(0)
			updateConfig.Timeout = 60
			updateConfig.Offset = -1
			updates := api.GetUpdatesChan(updateConfig)

			go func() {
				<-ctx.Done()
				api.StopReceivingUpdates()
			}()

			b.Listen(ctx, updates)
			log.Info("Bot stopped")
			return nil
		},
	}
}
