package sms

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/tutorbookapp/relay/internal/carrier"
	"github.com/tutorbookapp/relay/internal/chat"
	"github.com/tutorbookapp/relay/internal/directory"
	"github.com/tutorbookapp/relay/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{}, &models.Location{},
		&models.Chat{}, &models.ChatParticipant{}, &models.ChatMessage{},
	)
	if err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

type fixture struct {
	dispatcher *Dispatcher
	mock       *carrier.Mock
	db         *gorm.DB
	sam        *models.User
	pam        *models.User
	noPhone    *models.User
	excluded   *models.User
}

func newFixture(t *testing.T, opts DispatcherOpts) *fixture {
	t.Helper()
	db := openTestDB(t)

	users := []models.User{
		{UID: "sam", Name: "Sam Smith", Phone: "+15550002222", Location: "Gunn Academic Center"},
		{UID: "pam", Name: "Pam Reed", Phone: "+15550003333", Role: models.RoleSupervisor, Location: "Gunn Academic Center"},
		{UID: "mute", Name: "Mute Mills", Location: "Gunn Academic Center"},
		{UID: "paly", Name: "Paly Kid", Phone: "+15550004444", Location: "Paly Peer Tutoring Center"},
	}
	for i := range users {
		if err := db.Create(&users[i]).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	locs := []models.Location{
		{Name: "Gunn Academic Center", SupervisorUID: "pam"},
		{Name: "Paly Peer Tutoring Center", SupervisorUID: "pam", SMSExcluded: true},
		{Name: "Any", SupervisorUID: "pam"},
	}
	for i := range locs {
		if err := db.Create(&locs[i]).Error; err != nil {
			t.Fatalf("seed location: %v", err)
		}
	}

	dir, err := directory.New(directory.Opts{DB: db, DefaultLocation: "Any"})
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	poster, err := chat.NewPoster(chat.PosterOpts{DB: db})
	if err != nil {
		t.Fatalf("new poster: %v", err)
	}
	mock := carrier.NewMock()

	opts.Client = mock
	opts.Directory = dir
	opts.Poster = poster
	opts.Out = io.Discard
	d, err := NewDispatcher(opts)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return &fixture{
		dispatcher: d,
		mock:       mock,
		db:         db,
		sam:        &users[0],
		pam:        &users[1],
		noPhone:    &users[2],
		excluded:   &users[3],
	}
}

func noticeCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	db.Model(&models.ChatMessage{}).Count(&count)
	return count
}

func TestSendSuccess(t *testing.T) {
	f := newFixture(t, DispatcherOpts{})

	err := f.dispatcher.Send(context.Background(), Message{
		Recipient: f.sam, Sender: f.pam, Body: "hello",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	sent := f.mock.Sent()
	if len(sent) != 1 || sent[0].To != "+15550002222" || sent[0].Body != "hello" {
		t.Errorf("sent = %+v", sent)
	}
	// Success without NotifyOnSuccess leaves no in-app trace.
	if n := noticeCount(t, f.db); n != 0 {
		t.Errorf("notice count = %d, want 0", n)
	}
}

func TestSendNotifyOnSuccess(t *testing.T) {
	f := newFixture(t, DispatcherOpts{})

	err := f.dispatcher.Send(context.Background(), Message{
		Recipient: f.sam, Sender: f.pam, Body: "hello", NotifyOnSuccess: true,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := noticeCount(t, f.db); n != 1 {
		t.Errorf("notice count = %d, want 1", n)
	}
}

func TestSendNoPhoneNeverCallsCarrier(t *testing.T) {
	f := newFixture(t, DispatcherOpts{})

	err := f.dispatcher.Send(context.Background(), Message{
		Recipient: f.noPhone, Sender: f.pam, Body: "hello",
	})
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(f.mock.Sent()) != 0 {
		t.Error("carrier must not be called for a phone-less recipient")
	}
	// Exactly one fallback notification.
	if n := noticeCount(t, f.db); n != 1 {
		t.Errorf("notice count = %d, want 1", n)
	}
}

func TestSendExcludedLocation(t *testing.T) {
	f := newFixture(t, DispatcherOpts{})

	err := f.dispatcher.Send(context.Background(), Message{
		Recipient: f.excluded, Sender: f.pam, Body: "hello",
	})
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(f.mock.Sent()) != 0 {
		t.Error("carrier must not be called for an excluded location")
	}
}

func TestSendEmptyBody(t *testing.T) {
	f := newFixture(t, DispatcherOpts{})

	err := f.dispatcher.Send(context.Background(), Message{Recipient: f.sam, Sender: f.pam})
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestSendKillSwitch(t *testing.T) {
	f := newFixture(t, DispatcherOpts{SkipAll: true})

	err := f.dispatcher.Send(context.Background(), Message{
		Recipient: f.sam, Sender: f.pam, Body: "hello",
	})
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(f.mock.Sent()) != 0 {
		t.Error("carrier must not be called with SKIP_SMS set")
	}
}

func TestSendTestMode(t *testing.T) {
	f := newFixture(t, DispatcherOpts{TestMode: true})

	err := f.dispatcher.Send(context.Background(), Message{
		Recipient: f.sam, Sender: f.pam, Body: "hello",
	})
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestSendNoFailureNotice(t *testing.T) {
	f := newFixture(t, DispatcherOpts{})

	err := f.dispatcher.Send(context.Background(), Message{
		Recipient: f.noPhone, Sender: f.pam, Body: "hello", NoFailureNotice: true,
	})
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if n := noticeCount(t, f.db); n != 0 {
		t.Errorf("notice count = %d, want 0", n)
	}
}

type recordingAlerter struct {
	titles []string
}

func (r *recordingAlerter) Error(ctx context.Context, title, body string) {
	r.titles = append(r.titles, title)
}

func TestSendCarrierFailure(t *testing.T) {
	alerter := &recordingAlerter{}
	f := newFixture(t, DispatcherOpts{Alerter: alerter})
	f.mock.SendErr = errors.New("credentials rejected")

	err := f.dispatcher.Send(context.Background(), Message{
		Recipient: f.sam, Sender: f.pam, Body: "hello",
	})
	if err == nil || IsValidation(err) {
		t.Fatalf("err = %v, want carrier error", err)
	}
	// One fallback notification, one alert, no retry.
	if n := noticeCount(t, f.db); n != 1 {
		t.Errorf("notice count = %d, want 1", n)
	}
	if len(alerter.titles) != 1 {
		t.Errorf("alerts = %v, want exactly one", alerter.titles)
	}
	if len(f.mock.Sent()) != 0 {
		t.Error("failed send must not be recorded as sent")
	}
}

func TestSendDefaultsSenderToSupervisor(t *testing.T) {
	f := newFixture(t, DispatcherOpts{})

	err := f.dispatcher.Send(context.Background(), Message{
		Recipient: f.noPhone, Body: "hello",
	})
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	// The fallback notice lands in the chat between recipient and the
	// location's supervisor (pam).
	var parts []models.ChatParticipant
	f.db.Find(&parts)
	var uids []string
	for _, part := range parts {
		uids = append(uids, part.UserUID)
	}
	if len(uids) != 2 {
		t.Fatalf("participants = %v, want recipient and supervisor", uids)
	}
	found := map[string]bool{}
	for _, uid := range uids {
		found[uid] = true
	}
	if !found["mute"] || !found["pam"] {
		t.Errorf("participants = %v, want mute and pam", uids)
	}
}
