package models

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/pkg/constants"
)

// DispatchRule maps an inbound number to an agent configuration. Rules are
// evaluated by ascending priority; the first enabled match wins.
type DispatchRule struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updatedAt" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	TrunkID uint   `json:"trunkId" gorm:"index"`
	Name    string `json:"name" gorm:"size:128;not null"`

	// NumberPattern matches the called number. Either an exact number or a
	// prefix ending in '*', e.g. "+4930*".
	NumberPattern string `json:"numberPattern" gorm:"size:64;not null;index"`

	AgentName  string `json:"agentName" gorm:"size:128"`
	RoomPrefix string `json:"roomPrefix" gorm:"size:32;default:'call-'"`
	Priority   int    `json:"priority" gorm:"default:100;index"`
	Enabled    bool   `json:"enabled" gorm:"default:true"`

	Metadata string `json:"metadata,omitempty" gorm:"type:text"`
}

func (DispatchRule) TableName() string {
	return constants.TABLE_DISPATCH_RULES
}

// Matches reports whether the rule applies to the called number.
func (dr *DispatchRule) Matches(number string) bool {
	if dr.NumberPattern == "" {
		return false
	}
	if strings.HasSuffix(dr.NumberPattern, "*") {
		return strings.HasPrefix(number, strings.TrimSuffix(dr.NumberPattern, "*"))
	}
	return dr.NumberPattern == number
}

// CreateDispatchRule creates a dispatch rule
func CreateDispatchRule(db *gorm.DB, rule *DispatchRule) error {
	return db.Create(rule).Error
}

// GetDispatchRuleByID fetches a rule by ID
func GetDispatchRuleByID(db *gorm.DB, id uint) (*DispatchRule, error) {
	var rule DispatchRule
	err := db.First(&rule, id).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListDispatchRules lists all rules ordered by priority
func ListDispatchRules(db *gorm.DB) ([]DispatchRule, error) {
	var rules []DispatchRule
	err := db.Order("priority asc").Find(&rules).Error
	return rules, err
}

// MatchDispatchRule returns the highest-priority enabled rule for a number
func MatchDispatchRule(db *gorm.DB, number string) (*DispatchRule, error) {
	var rules []DispatchRule
	err := db.Where("enabled = ?", true).Order("priority asc").Find(&rules).Error
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		if rule.Matches(number) {
			return &rule, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// UpdateDispatchRule saves a rule
func UpdateDispatchRule(db *gorm.DB, rule *DispatchRule) error {
	return db.Save(rule).Error
}

// DeleteDispatchRule soft-deletes a rule
func DeleteDispatchRule(db *gorm.DB, id uint) error {
	return db.Delete(&DispatchRule{}, id).Error
}
