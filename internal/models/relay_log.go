package models

import "time"

// Relay actions recorded per webhook call.
const (
	RelayActionDirect     = "direct"
	RelayActionSupervisor = "supervisor"
	RelayActionAsk        = "ask"
	RelayActionError      = "error"
)

// RelayLog records the outcome of one inbound webhook call: who replied,
// how the message was classified, and where it was routed. Feeds the daily
// digest and leaves an audit trail for unanswered disambiguation prompts.
type RelayLog struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ResponderUID   string `gorm:"size:64;index"`
	ResponderPhone string `gorm:"size:24"`
	Action         string `gorm:"size:16;not null;index"`
	TargetUID      string `gorm:"size:64"`
	Classification string `gorm:"size:24"`
	Detail         string `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"index"`
}
