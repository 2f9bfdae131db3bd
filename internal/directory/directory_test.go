package directory

import (
	"context"
	"errors"
	"testing"

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
	if err := db.AutoMigrate(&models.User{}, &models.Location{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	users := []models.User{
		{UID: "sam", Name: "Sam Smith", Phone: "+15550002222", Role: models.RoleTutee, Location: "Gunn Academic Center"},
		{UID: "pam", Name: "Pam Reed", Phone: "+15550003333", Role: models.RoleSupervisor, Location: "Gunn Academic Center"},
		{UID: "val", Name: "Val Ortiz", Phone: "+15550004444", Role: models.RoleSupervisor, Location: "Any"},
	}
	for i := range users {
		if err := db.Create(&users[i]).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	locs := []models.Location{
		{Name: "Gunn Academic Center", SupervisorUID: "pam"},
		{Name: "Any", SupervisorUID: "val"},
		{Name: "Paly Peer Tutoring Center", SupervisorUID: "val", SMSExcluded: true},
	}
	for i := range locs {
		if err := db.Create(&locs[i]).Error; err != nil {
			t.Fatalf("seed location: %v", err)
		}
	}
}

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	db := openTestDB(t)
	seed(t, db)
	d, err := New(Opts{DB: db, DefaultLocation: "Any"})
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	return d
}

func TestUserByPhone(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	user, err := d.UserByPhone(ctx, "+15550002222")
	if err != nil {
		t.Fatalf("UserByPhone: %v", err)
	}
	if user.UID != "sam" {
		t.Errorf("UID = %q, want sam", user.UID)
	}

	_, err = d.UserByPhone(ctx, "+15559999999")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown phone: err = %v, want ErrNotFound", err)
	}
}

func TestSupervisorFor(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	sup, err := d.SupervisorFor(ctx, "Gunn Academic Center")
	if err != nil {
		t.Fatalf("SupervisorFor: %v", err)
	}
	if sup.UID != "pam" {
		t.Errorf("supervisor = %q, want pam", sup.UID)
	}
}

func TestSupervisorForFallsBackToDefault(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	// Empty location → default.
	sup, err := d.SupervisorFor(ctx, "")
	if err != nil {
		t.Fatalf("SupervisorFor(empty): %v", err)
	}
	if sup.UID != "val" {
		t.Errorf("supervisor = %q, want val", sup.UID)
	}

	// Unknown location → default.
	sup, err = d.SupervisorFor(ctx, "No Such Place")
	if err != nil {
		t.Fatalf("SupervisorFor(unknown): %v", err)
	}
	if sup.UID != "val" {
		t.Errorf("supervisor = %q, want val", sup.UID)
	}
}

func TestLocationExcluded(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	excluded, err := d.LocationExcluded(ctx, "Paly Peer Tutoring Center")
	if err != nil {
		t.Fatalf("LocationExcluded: %v", err)
	}
	if !excluded {
		t.Error("Paly should be excluded")
	}

	excluded, err = d.LocationExcluded(ctx, "Gunn Academic Center")
	if err != nil {
		t.Fatalf("LocationExcluded: %v", err)
	}
	if excluded {
		t.Error("Gunn should not be excluded")
	}
}
