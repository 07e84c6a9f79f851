package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/pkg/constants"
)

// SIPTrunkStatus trunk status
type SIPTrunkStatus string

const (
	SIPTrunkStatusActive   SIPTrunkStatus = "active"
	SIPTrunkStatusInactive SIPTrunkStatus = "inactive"
	SIPTrunkStatusError    SIPTrunkStatus = "error"
)

// SIPTrunkProvider trunk provider
type SIPTrunkProvider string

const (
	SIPTrunkProviderTwilio SIPTrunkProvider = "twilio"
	SIPTrunkProviderVonage SIPTrunkProvider = "vonage"
	SIPTrunkProviderCustom SIPTrunkProvider = "custom"
)

// PhoneNumbers list of phone numbers stored as a JSON column
type PhoneNumbers []string

// Value implements driver.Valuer
func (pn PhoneNumbers) Value() (driver.Value, error) {
	if len(pn) == 0 {
		return nil, nil
	}
	return json.Marshal(pn)
}

// Scan implements sql.Scanner
func (pn *PhoneNumbers) Scan(value interface{}) error {
	if value == nil {
		*pn = make(PhoneNumbers, 0)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	if len(bytes) == 0 {
		*pn = make(PhoneNumbers, 0)
		return nil
	}
	return json.Unmarshal(bytes, pn)
}

// SIPTrunk is an inbound trunk owned by a telephony provider. The bridge only
// needs the numbers and routing metadata, signaling stays with the provider.
type SIPTrunk struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updatedAt" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Name        string           `json:"name" gorm:"size:128;not null"`
	Description string           `json:"description,omitempty" gorm:"type:text"`
	Provider    SIPTrunkProvider `json:"provider" gorm:"size:32;not null"`
	Status      SIPTrunkStatus   `json:"status" gorm:"size:20;default:'inactive';index"`

	PhoneNumbers PhoneNumbers `json:"phoneNumbers" gorm:"type:json"`
	CallerID     string       `json:"callerId,omitempty" gorm:"size:32"`

	TotalCalls   int        `json:"totalCalls" gorm:"default:0"`
	LastCallTime *time.Time `json:"lastCallTime,omitempty"`

	Enabled   bool `json:"enabled" gorm:"default:true"`
	IsDefault bool `json:"isDefault" gorm:"default:false"`

	Metadata string `json:"metadata,omitempty" gorm:"type:text"`
}

func (SIPTrunk) TableName() string {
	return constants.TABLE_SIP_TRUNKS
}

// IsActive reports whether the trunk accepts calls
func (st *SIPTrunk) IsActive() bool {
	return st.Status == SIPTrunkStatusActive && st.Enabled
}

// HasPhoneNumber reports whether the trunk owns the number
func (st *SIPTrunk) HasPhoneNumber(number string) bool {
	for _, phone := range st.PhoneNumbers {
		if phone == number {
			return true
		}
	}
	return false
}

// CreateSIPTrunk creates a trunk
func CreateSIPTrunk(db *gorm.DB, trunk *SIPTrunk) error {
	return db.Create(trunk).Error
}

// GetSIPTrunkByID fetches a trunk by ID
func GetSIPTrunkByID(db *gorm.DB, id uint) (*SIPTrunk, error) {
	var trunk SIPTrunk
	err := db.First(&trunk, id).Error
	if err != nil {
		return nil, err
	}
	return &trunk, nil
}

// GetDefaultSIPTrunk fetches the default enabled trunk
func GetDefaultSIPTrunk(db *gorm.DB) (*SIPTrunk, error) {
	var trunk SIPTrunk
	err := db.Where("is_default = ? AND enabled = ?", true, true).First(&trunk).Error
	if err != nil {
		return nil, err
	}
	return &trunk, nil
}

// GetActiveSIPTrunks lists all active trunks
func GetActiveSIPTrunks(db *gorm.DB) ([]SIPTrunk, error) {
	var trunks []SIPTrunk
	err := db.Where("status = ? AND enabled = ?", SIPTrunkStatusActive, true).Find(&trunks).Error
	return trunks, err
}

// GetSIPTrunkByPhoneNumber finds the trunk owning a number
func GetSIPTrunkByPhoneNumber(db *gorm.DB, phoneNumber string) (*SIPTrunk, error) {
	var trunks []SIPTrunk
	err := db.Where("enabled = ?", true).Find(&trunks).Error
	if err != nil {
		return nil, err
	}

	for _, trunk := range trunks {
		if trunk.HasPhoneNumber(phoneNumber) {
			return &trunk, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// UpdateSIPTrunk saves a trunk
func UpdateSIPTrunk(db *gorm.DB, trunk *SIPTrunk) error {
	return db.Save(trunk).Error
}

// DeleteSIPTrunk soft-deletes a trunk
func DeleteSIPTrunk(db *gorm.DB, id uint) error {
	return db.Delete(&SIPTrunk{}, id).Error
}

// TouchSIPTrunkCall bumps the trunk call counter
func TouchSIPTrunkCall(db *gorm.DB, id uint) error {
	now := time.Now()
	return db.Model(&SIPTrunk{}).Where("id = ?", id).Updates(map[string]any{
		"total_calls":    gorm.Expr("total_calls + 1"),
		"last_call_time": &now,
	}).Error
}
