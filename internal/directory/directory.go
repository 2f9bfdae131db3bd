// Package directory resolves phone numbers and locations to user records.
// All lookups are read-only; store failures are returned as hard errors so
// the webhook can abort without sending a contentless reply.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/tutorbookapp/relay/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("directory: not found")

// Directory answers user and supervisor lookups against the application
// store.
type Directory struct {
	db              *gorm.DB
	defaultLocation string
}

// Opts holds parameters for creating a Directory.
type Opts struct {
	DB              *gorm.DB
	DefaultLocation string // fallback when a party's location is unknown
}

// New creates a Directory.
func New(opts Opts) (*Directory, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("directory: db is required")
	}
	if opts.DefaultLocation == "" {
		return nil, fmt.Errorf("directory: default location is required")
	}
	return &Directory{db: opts.DB, defaultLocation: opts.DefaultLocation}, nil
}

// UserByPhone returns the user registered with the given E.164 phone number.
func (d *Directory) UserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("directory: user with phone %s: %w", phone, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("directory: user by phone: %w", err)
	}
	return &user, nil
}

// UserByUID returns the user with the given uid.
func (d *Directory) UserByUID(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).Where("uid = ?", uid).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("directory: user %s: %w", uid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("directory: user by uid: %w", err)
	}
	return &user, nil
}

// SupervisorFor returns the supervisor responsible for the given location.
// When location is empty or has no record, the configured default location
// is tried before giving up, so escalation always has somewhere to go.
func (d *Directory) SupervisorFor(ctx context.Context, location string) (*models.User, error) {
	if location == "" {
		location = d.defaultLocation
	}
	sup, err := d.supervisorAt(ctx, location)
	if err == nil {
		return sup, nil
	}
	if !errors.Is(err, ErrNotFound) || location == d.defaultLocation {
		return nil, err
	}
	return d.supervisorAt(ctx, d.defaultLocation)
}

// LocationExcluded reports whether the location's policy forbids SMS.
func (d *Directory) LocationExcluded(ctx context.Context, location string) (bool, error) {
	if location == "" {
		return false, nil
	}
	var loc models.Location
	err := d.db.WithContext(ctx).Where("name = ?", location).First(&loc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("directory: location %s: %w", location, err)
	}
	return loc.SMSExcluded, nil
}

func (d *Directory) supervisorAt(ctx context.Context, location string) (*models.User, error) {
	var loc models.Location
	err := d.db.WithContext(ctx).Where("name = ?", location).First(&loc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("directory: location %s: %w", location, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("directory: location %s: %w", location, err)
	}
	return d.UserByUID(ctx, loc.SupervisorUID)
}
