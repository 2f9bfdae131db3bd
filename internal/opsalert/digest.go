package opsalert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tutorbookapp/relay/internal/models"
	"gorm.io/gorm"
)

// RelayReport holds routing metrics for one digest period.
type RelayReport struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Direct      int
	Supervisor  int
	Asked       int
	Errors      int
	// PendingAsks counts disambiguation prompts with no later routed
	// message from the same responder: likely dropped conversations.
	PendingAsks int
}

// Total returns the number of webhook calls covered by the report.
func (r *RelayReport) Total() int {
	return r.Direct + r.Supervisor + r.Asked + r.Errors
}

// BuildRelayReport aggregates the relay log between since and until.
func BuildRelayReport(db *gorm.DB, since, until time.Time) (*RelayReport, error) {
	report := &RelayReport{PeriodStart: since, PeriodEnd: until}

	counts := map[string]*int{
		models.RelayActionDirect:     &report.Direct,
		models.RelayActionSupervisor: &report.Supervisor,
		models.RelayActionAsk:        &report.Asked,
		models.RelayActionError:      &report.Errors,
	}
	for action, dst := range counts {
		var n int64
		err := db.Model(&models.RelayLog{}).
			Where("action = ? AND created_at >= ? AND created_at < ?", action, since, until).
			Count(&n).Error
		if err != nil {
			return nil, fmt.Errorf("opsalert: count %s relays: %w", action, err)
		}
		*dst = int(n)
	}

	// An ask is pending when the responder has no newer relay-log row of
	// any kind: they never answered the prompt.
	var pending int64
	err := db.Model(&models.RelayLog{}).
		Where("action = ? AND created_at >= ? AND created_at < ?", models.RelayActionAsk, since, until).
		Where("NOT EXISTS (SELECT 1 FROM relay_logs later WHERE later.responder_phone = relay_logs.responder_phone AND later.created_at > relay_logs.created_at)").
		Count(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("opsalert: count pending asks: %w", err)
	}
	report.PendingAsks = int(pending)

	return report, nil
}

// FormatRelayReport renders a report as an alert. Severity escalates to
// warning when any call errored.
func FormatRelayReport(report *RelayReport) Alert {
	var lines []string
	lines = append(lines, fmt.Sprintf("**Period**: %s – %s",
		report.PeriodStart.Format("Jan 2 15:04"),
		report.PeriodEnd.Format("Jan 2 15:04")))
	lines = append(lines, fmt.Sprintf("**Relayed**: %d direct, %d to supervisors",
		report.Direct, report.Supervisor))
	if report.Asked > 0 {
		lines = append(lines, fmt.Sprintf("**Asked who to relay**: %d (%d unanswered)",
			report.Asked, report.PendingAsks))
	}
	if report.Errors > 0 {
		lines = append(lines, fmt.Sprintf("**Errors**: %d", report.Errors))
	}

	fields := []Field{
		{Name: "Direct", Value: fmt.Sprintf("%d", report.Direct), Short: true},
		{Name: "Supervisor", Value: fmt.Sprintf("%d", report.Supervisor), Short: true},
	}
	if report.Asked > 0 {
		fields = append(fields, Field{Name: "Asked", Value: fmt.Sprintf("%d", report.Asked), Short: true})
	}
	if report.Errors > 0 {
		fields = append(fields, Field{Name: "Errors", Value: fmt.Sprintf("%d", report.Errors), Short: true})
	}

	severity := SeverityInfo
	if report.Errors > 0 {
		severity = SeverityWarning
	}
	return Alert{
		Severity: severity,
		Title:    "SMS Relay Digest",
		Body:     strings.Join(lines, "\n"),
		Fields:   fields,
	}
}

// cronParser uses standard 5-field cron expressions (minute, hour, dom,
// month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Digester periodically builds the relay report and pushes it through the
// notifier. Digests with no activity are suppressed.
type Digester struct {
	db       *gorm.DB
	notifier *Notifier
	sched    *cron.Cron
	period   time.Duration
}

// DigesterOpts holds parameters for creating a Digester.
type DigesterOpts struct {
	DB       *gorm.DB
	Notifier *Notifier
	// Period is the look-back window per digest; defaults to 24h.
	Period time.Duration
}

// NewDigester creates a Digester.
func NewDigester(opts DigesterOpts) (*Digester, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("opsalert: digester: db is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("opsalert: digester: notifier is required")
	}
	period := opts.Period
	if period <= 0 {
		period = 24 * time.Hour
	}
	return &Digester{
		db:       opts.DB,
		notifier: opts.Notifier,
		sched:    cron.New(cron.WithParser(cronParser)),
		period:   period,
	}, nil
}

// Start schedules the digest on the given 5-field cron expression and
// begins running it.
func (d *Digester) Start(spec string) error {
	_, err := d.sched.AddFunc(spec, func() {
		if err := d.Run(context.Background()); err != nil {
			d.notifier.Error(context.Background(), "Digest failed", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("opsalert: schedule digest %q: %w", spec, err)
	}
	d.sched.Start()
	return nil
}

// Stop halts the schedule. Safe to call before Start.
func (d *Digester) Stop() {
	d.sched.Stop()
}

// Run builds and sends one digest immediately.
func (d *Digester) Run(ctx context.Context) error {
	now := time.Now()
	report, err := BuildRelayReport(d.db.WithContext(ctx), now.Add(-d.period), now)
	if err != nil {
		return err
	}
	if report.Total() == 0 {
		return nil
	}
	d.notifier.Notify(ctx, FormatRelayReport(report))
	return nil
}
