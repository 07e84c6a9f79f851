package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/pkg/constants"
)

// CallPath records which conversation path a call took.
type CallPath string

const (
	CallPathRealtime CallPath = "realtime"
	CallPathFallback CallPath = "fallback"
)

// CallStatus call lifecycle status
type CallStatus string

const (
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
)

// CallRecord persists the lifecycle of one inbound call.
type CallRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`

	CallSid  string     `json:"callSid" gorm:"size:64;uniqueIndex;not null"`
	From     string     `json:"from" gorm:"size:32"`
	To       string     `json:"to" gorm:"size:32"`
	Path     CallPath   `json:"path" gorm:"size:16;index"`
	RoomName string     `json:"roomName,omitempty" gorm:"size:64"`
	Status   CallStatus `json:"status" gorm:"size:20;default:'in_progress';index"`
	Reason   string     `json:"reason,omitempty" gorm:"size:256"`

	TurnCount int        `json:"turnCount" gorm:"default:0"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

func (CallRecord) TableName() string {
	return constants.TABLE_CALL_RECORDS
}

// DurationSeconds returns the call duration, 0 while in progress.
func (cr *CallRecord) DurationSeconds() int {
	if cr.EndedAt == nil {
		return 0
	}
	return int(cr.EndedAt.Sub(cr.StartedAt).Seconds())
}

// CreateCallRecord creates a call record
func CreateCallRecord(db *gorm.DB, record *CallRecord) error {
	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now()
	}
	return db.Create(record).Error
}

// GetCallRecordBySid fetches a call record by its call SID
func GetCallRecordBySid(db *gorm.DB, callSid string) (*CallRecord, error) {
	var record CallRecord
	err := db.Where("call_sid = ?", callSid).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetActiveCallRecords lists all calls still in progress
func GetActiveCallRecords(db *gorm.DB) ([]CallRecord, error) {
	var records []CallRecord
	err := db.Where("status = ?", CallStatusInProgress).Find(&records).Error
	return records, err
}

// IncrementCallTurns bumps the fallback turn counter
func IncrementCallTurns(db *gorm.DB, callSid string) error {
	return db.Model(&CallRecord{}).
		Where("call_sid = ?", callSid).
		UpdateColumn("turn_count", gorm.Expr("turn_count + 1")).Error
}

// FinishCallRecord marks a call finished with the given status and reason
func FinishCallRecord(db *gorm.DB, callSid string, status CallStatus, reason string) error {
	now := time.Now()
	return db.Model(&CallRecord{}).
		Where("call_sid = ?", callSid).
		Updates(map[string]any{
			"status":   status,
			"reason":   reason,
			"ended_at": &now,
		}).Error
}
