package models

import "time"

// Location is a tutoring center. Each location has exactly one responsible
// supervisor who receives escalated SMS relays.
type Location struct {
	Name          string `gorm:"primaryKey;size:128"`
	SupervisorUID string `gorm:"size:64;not null"`
	SMSExcluded   bool   `gorm:"default:false"` // policy: no SMS to users at this location
	CreatedAt     time.Time
}
