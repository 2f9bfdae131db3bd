// Package models defines the GORM records shared across the relay service.
package models

import "time"

// User roles.
const (
	RoleTutee      = "tutee"
	RoleProvider   = "provider"
	RoleSupervisor = "supervisor"
)

// OperatorUID is the sentinel uid used when a message has no human sender
// (automatic notifications, system messages). It never corresponds to a
// users row.
const OperatorUID = "operator"

// User is a profile snapshot. The relay subsystem only ever reads these;
// profile CRUD lives in the web app.
type User struct {
	UID       string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:128;not null"`
	Email     string `gorm:"size:128"`
	Phone     string `gorm:"size:24;index"` // E.164, empty when the user never added one
	Gender    string `gorm:"size:16"`
	Role      string `gorm:"size:16;index"`
	Location  string `gorm:"size:128;index"`
	CreatedAt time.Time
}

// FirstName returns the first whitespace-separated token of the user's name.
// Used to build the "<first name> says: ..." SMS echo.
func (u *User) FirstName() string {
	for i := 0; i < len(u.Name); i++ {
		if u.Name[i] == ' ' {
			return u.Name[:i]
		}
	}
	return u.Name
}

// Pronoun returns the subject pronoun used in forwarding confirmations.
func (u *User) Pronoun() string {
	switch u.Gender {
	case "Male":
		return "He"
	case "Female":
		return "She"
	default:
		return "They"
	}
}

// Operator returns the synthetic Operator identity used as the default
// sender for system-generated in-app messages.
func Operator() *User {
	return &User{
		UID:   OperatorUID,
		Name:  "Operator",
		Email: "help@tutorbook.app",
	}
}
