package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/tutorbookapp/relay/internal/carrier"
	"github.com/tutorbookapp/relay/internal/chat"
	"github.com/tutorbookapp/relay/internal/config"
	"github.com/tutorbookapp/relay/internal/db"
	"github.com/tutorbookapp/relay/internal/directory"
	"github.com/tutorbookapp/relay/internal/models"
	"github.com/tutorbookapp/relay/internal/opsalert"
	discordalert "github.com/tutorbookapp/relay/internal/opsalert/discord"
	slackalert "github.com/tutorbookapp/relay/internal/opsalert/slack"
	"github.com/tutorbookapp/relay/internal/relay"
	"github.com/tutorbookapp/relay/internal/sms"
	"github.com/tutorbookapp/relay/internal/webhook"
	"gorm.io/gorm"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SMS relay webhook server",
		Long: "Starts the HTTP server answering the carrier's inbound-SMS and\n" +
			"fallback webhooks, plus the scheduled relay digest when configured.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "relay.yaml", "path to relay config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loaded config from %s\n", configPath)

	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}
	if err := db.Ping(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s:%d/%s\n", cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)

	if err := applyExcludedLocations(gormDB, cfg.Routing.ExcludedLocations); err != nil {
		return err
	}

	notifier := buildNotifier(cfg.Alerts, out)
	defer notifier.Close()

	router, _, err := buildRouter(cfg, gormDB, notifier, out)
	if err != nil {
		return err
	}

	sessionTTL := time.Duration(cfg.Webhook.SessionTTLMin) * time.Minute
	gate, err := buildGate(cfg, sessionTTL)
	if err != nil {
		return err
	}

	server, err := webhook.NewServer(webhook.ServerOpts{
		Processor:     router,
		Gate:          gate,
		Alerter:       notifier,
		OperatorPhone: cfg.Twilio.Operator,
		CookieName:    cfg.Webhook.CookieName,
		SessionTTL:    sessionTTL,
		Port:          cfg.Webhook.Port,
		Out:           out,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Alerts.DigestCron != "" {
		digester, err := opsalert.NewDigester(opsalert.DigesterOpts{
			DB:       gormDB,
			Notifier: notifier,
		})
		if err != nil {
			return err
		}
		if err := digester.Start(cfg.Alerts.DigestCron); err != nil {
			return err
		}
		defer digester.Stop()
		fmt.Fprintf(out, "Digest scheduled: %s\n", cfg.Alerts.DigestCron)
	}

	return server.Start(ctx)
}

// buildRouter wires the relay pipeline from config.
func buildRouter(cfg *config.Config, gormDB *gorm.DB, notifier *opsalert.Notifier, out io.Writer) (*relay.Router, *sms.Dispatcher, error) {
	twilio, err := carrier.NewTwilio(carrier.TwilioOpts{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		Phone:      cfg.Twilio.Phone,
	})
	if err != nil {
		return nil, nil, err
	}
	dir, err := directory.New(directory.Opts{
		DB:              gormDB,
		DefaultLocation: cfg.Routing.DefaultLocation,
	})
	if err != nil {
		return nil, nil, err
	}
	poster, err := chat.NewPoster(chat.PosterOpts{DB: gormDB})
	if err != nil {
		return nil, nil, err
	}
	dispatcher, err := sms.NewDispatcher(sms.DispatcherOpts{
		Client:    twilio,
		Directory: dir,
		Poster:    poster,
		Alerter:   notifier,
		SkipAll:   cfg.SkipSMS,
		TestMode:  cfg.TestMode,
		Out:       out,
	})
	if err != nil {
		return nil, nil, err
	}
	fetcher, err := relay.NewFetcher(relay.FetcherOpts{
		Client:  twilio,
		Gateway: cfg.Twilio.Phone,
	})
	if err != nil {
		return nil, nil, err
	}
	resolver, err := relay.NewResolver(relay.ResolverOpts{DB: gormDB, Directory: dir})
	if err != nil {
		return nil, nil, err
	}
	router, err := relay.NewRouter(relay.RouterOpts{
		Directory:  dir,
		Fetcher:    fetcher,
		Classifier: relay.NewClassifier(cfg.Twilio.Operator),
		Resolver:   resolver,
		Poster:     poster,
		Dispatcher: dispatcher,
		DB:         gormDB,
		Out:        out,
	})
	if err != nil {
		return nil, nil, err
	}
	return router, dispatcher, nil
}

// buildNotifier assembles alert adapters from config. Platforms without
// credentials are simply skipped.
func buildNotifier(cfg config.AlertsConfig, out io.Writer) *opsalert.Notifier {
	var adapters []opsalert.Adapter
	if cfg.SlackToken != "" && cfg.SlackChannel != "" {
		a, err := slackalert.New(slackalert.AdapterOpts{
			BotToken:  cfg.SlackToken,
			ChannelID: cfg.SlackChannel,
		})
		if err == nil {
			adapters = append(adapters, a)
		} else {
			fmt.Fprintf(out, "Slack alerts disabled: %v\n", err)
		}
	}
	if cfg.DiscordToken != "" && cfg.DiscordChannel != "" {
		a, err := discordalert.New(discordalert.AdapterOpts{
			BotToken:  cfg.DiscordToken,
			ChannelID: cfg.DiscordChannel,
		})
		if err == nil {
			adapters = append(adapters, a)
		} else {
			fmt.Fprintf(out, "Discord alerts disabled: %v\n", err)
		}
	}
	return opsalert.NewNotifier(opsalert.NotifierOpts{Adapters: adapters, Out: out})
}

// buildGate picks the prompt-gate backend: Redis when configured, an
// in-process gate otherwise.
func buildGate(cfg *config.Config, ttl time.Duration) (relay.PromptGate, error) {
	if cfg.Redis.Addr == "" {
		return relay.NewMemoryGate(ttl), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return relay.NewRedisGate(relay.RedisGateOpts{Client: client, TTL: ttl})
}

// applyExcludedLocations marks config-listed locations as SMS-excluded in
// the store, so policy survives lookups done by other services too.
func applyExcludedLocations(gormDB *gorm.DB, names []string) error {
	if len(names) == 0 {
		return nil
	}
	err := gormDB.Model(&models.Location{}).
		Where("name IN ?", names).
		Update("sms_excluded", true).Error
	if err != nil {
		return fmt.Errorf("apply excluded locations: %w", err)
	}
	return nil
}
