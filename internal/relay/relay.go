package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/tutorbookapp/relay/internal/carrier"
	"github.com/tutorbookapp/relay/internal/chat"
	"github.com/tutorbookapp/relay/internal/directory"
	"github.com/tutorbookapp/relay/internal/models"
	"github.com/tutorbookapp/relay/internal/sms"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// InboundSMS is the carrier webhook payload the router works from: the
// carrier supplies only the sender phone, the body, and its own timestamp.
// Everything else must be inferred.
type InboundSMS struct {
	From      string
	Body      string
	CreatedAt time.Time
}

// Result is the outcome of processing one inbound reply.
type Result struct {
	Responder  *models.User
	Supervisor *models.User
	Decision   Decision
	// Class is the classification of the terminal history leg, or empty
	// when history was exhausted before a terminal leg appeared.
	Class Class
}

// Router is the store-and-forward relay core: it reconstructs the
// conversation an inbound reply belongs to and forwards it accordingly.
type Router struct {
	dir        *directory.Directory
	fetcher    *Fetcher
	classifier *Classifier
	resolver   *Resolver
	poster     *chat.Poster
	dispatcher *sms.Dispatcher
	db         *gorm.DB
	out        io.Writer
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Directory  *directory.Directory
	Fetcher    *Fetcher
	Classifier *Classifier
	Resolver   *Resolver
	Poster     *chat.Poster
	Dispatcher *sms.Dispatcher
	DB         *gorm.DB
	Out        io.Writer // defaults to os.Stdout
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Directory == nil {
		return nil, fmt.Errorf("relay: router: directory is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("relay: router: fetcher is required")
	}
	if opts.Classifier == nil {
		return nil, fmt.Errorf("relay: router: classifier is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("relay: router: resolver is required")
	}
	if opts.Poster == nil {
		return nil, fmt.Errorf("relay: router: poster is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("relay: router: dispatcher is required")
	}
	if opts.DB == nil {
		return nil, fmt.Errorf("relay: router: db is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Router{
		dir:        opts.Directory,
		fetcher:    opts.Fetcher,
		classifier: opts.Classifier,
		resolver:   opts.Resolver,
		poster:     opts.Poster,
		dispatcher: opts.Dispatcher,
		db:         opts.DB,
		out:        out,
	}, nil
}

// Process handles one inbound reply end to end: identify the responder,
// walk history past transport noise to a terminal leg, correlate it to a
// correspondent, decide the route, and perform the relay. The returned
// Result carries the auto-reply prompt (if any) for the webhook to emit.
func (r *Router) Process(ctx context.Context, in InboundSMS) (*Result, error) {
	res, err := r.process(ctx, in)
	if err != nil {
		r.logOutcome(ctx, in, nil, models.RelayActionError, "", "", err.Error())
		return nil, err
	}

	action := models.RelayActionDirect
	switch res.Decision.Action {
	case ActionRelayToSupervisor:
		action = models.RelayActionSupervisor
	case ActionAskWhoToRelay:
		action = models.RelayActionAsk
	}
	target := ""
	if res.Decision.Target != nil {
		target = res.Decision.Target.UID
	}
	r.logOutcome(ctx, in, res.Responder, action, target, string(res.Class), "")
	return res, nil
}

func (r *Router) process(ctx context.Context, in InboundSMS) (*Result, error) {
	fmt.Fprintf(r.out, "relay: recv [from=%s] %q\n", in.From, truncate(in.Body, 80))

	// The responder lookup and the initial history fetch are independent
	// reads; run them concurrently.
	var responder *models.User
	var stream *legStream
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := r.dir.UserByPhone(gctx, in.From)
		if err != nil {
			return err
		}
		responder = u
		return nil
	})
	g.Go(func() error {
		s, err := newLegStream(gctx, r.fetcher, in.From)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Walk history newest-to-oldest, discarding transport noise, until a
	// terminal leg is found or the expansion budget runs out.
	correspondent := UnknownCorrespondent()
	var terminal carrier.Leg
	var class Class
	for {
		leg, err := stream.Next(ctx)
		if errors.Is(err, errExhausted) {
			fmt.Fprintf(r.out, "relay: history exhausted, correspondent unknown\n")
			break
		}
		if err != nil {
			return nil, err
		}
		c := r.classifier.Classify(leg.Body)
		if c.Noise() {
			fmt.Fprintf(r.out, "relay: skip %s leg %q\n", c, truncate(leg.Body, 60))
			continue
		}
		terminal, class = leg, c
		resolved, err := r.resolver.Resolve(ctx, leg, responder)
		if err != nil {
			return nil, err
		}
		correspondent = resolved
		break
	}

	// The supervisor escalation target follows the correspondent's
	// location when one was identified, the responder's otherwise.
	supLocation := responder.Location
	if human, ok := correspondent.Human(); ok {
		supLocation = human.Location
	}
	supervisor, err := r.dir.SupervisorFor(ctx, supLocation)
	if err != nil {
		return nil, err
	}

	decision := Decide(correspondent, terminal, supervisor, time.Now())
	fmt.Fprintf(r.out, "relay: decision %s [responder=%s]\n", decision.Action, responder.UID)

	if decision.Target != nil {
		if err := r.forward(ctx, responder, decision.Target, in.Body); err != nil {
			return nil, err
		}
	}

	return &Result{
		Responder:  responder,
		Supervisor: supervisor,
		Decision:   decision,
		Class:      class,
	}, nil
}

// forward posts the reply into the chat between responder and target, then
// mirrors it out as an SMS envelope. A failed mirror is recovered locally
// (the dispatcher posts the in-app failure notice); it never fails the
// inbound call.
func (r *Router) forward(ctx context.Context, responder, target *models.User, body string) error {
	msg, err := r.poster.Post(ctx, chat.PostOpts{
		From: responder,
		To:   []*models.User{target},
		Text: body,
	})
	if err != nil {
		return err
	}
	err = r.dispatcher.Send(ctx, sms.Message{
		Recipient: target,
		Sender:    responder,
		Body:      msg.SMS,
	})
	if err != nil && !sms.IsValidation(err) {
		log.Printf("relay: mirror to %s failed: %v", target.UID, err)
	}
	return nil
}

// logOutcome records a RelayLog row. Best-effort: the audit trail must
// never fail the call it describes.
func (r *Router) logOutcome(ctx context.Context, in InboundSMS, responder *models.User, action, target, class, detail string) {
	row := models.RelayLog{
		ResponderPhone: in.From,
		Action:         action,
		TargetUID:      target,
		Classification: class,
		Detail:         detail,
	}
	if responder != nil {
		row.ResponderUID = responder.UID
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		log.Printf("relay: write relay log: %v", err)
	}
}

// truncate returns s truncated to maxLen with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
