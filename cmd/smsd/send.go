package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tutorbookapp/relay/internal/chat"
	"github.com/tutorbookapp/relay/internal/config"
	"github.com/tutorbookapp/relay/internal/db"
	"github.com/tutorbookapp/relay/internal/directory"
	"github.com/tutorbookapp/relay/internal/models"
	"github.com/tutorbookapp/relay/internal/sms"
)

func newSendCmd() *cobra.Command {
	var (
		configPath string
		notify     bool
	)

	cmd := &cobra.Command{
		Use:   "send <uid> <message...>",
		Short: "Send an operator message to a user",
		Long: "Posts a message to the user's chat as the operator identity and\n" +
			"mirrors it out as an \"Operator says:\" SMS. Replies route back\n" +
			"through the relay like any other message.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, configPath, args[0], strings.Join(args[1:], " "), notify)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "relay.yaml", "path to relay config file")
	cmd.Flags().BoolVar(&notify, "notify", false, "post an in-app note when the SMS is delivered")
	return cmd
}

func runSend(cmd *cobra.Command, configPath, uid, body string, notify bool) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}

	notifier := buildNotifier(cfg.Alerts, out)
	defer notifier.Close()

	_, dispatcher, err := buildRouter(cfg, gormDB, notifier, out)
	if err != nil {
		return err
	}
	dir, err := directory.New(directory.Opts{
		DB:              gormDB,
		DefaultLocation: cfg.Routing.DefaultLocation,
	})
	if err != nil {
		return err
	}
	poster, err := chat.NewPoster(chat.PosterOpts{DB: gormDB})
	if err != nil {
		return err
	}

	target, err := dir.UserByUID(ctx, uid)
	if err != nil {
		return err
	}

	msg, err := poster.Post(ctx, chat.PostOpts{
		From: models.Operator(),
		To:   []*models.User{target},
		Text: body,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Posted to %s's chat\n", target.Name)

	err = dispatcher.Send(ctx, sms.Message{
		Recipient:       target,
		Body:            msg.SMS,
		NotifyOnSuccess: notify,
	})
	if sms.IsValidation(err) {
		fmt.Fprintf(out, "SMS not sent: %v (in-app notice posted)\n", err)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "SMS sent to %s\n", target.Phone)
	return nil
}
