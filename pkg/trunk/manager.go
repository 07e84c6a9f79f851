package trunk

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/internal/models"
	"github.com/LingByte/LingBridge/pkg/logger"
)

// Manager administers provider trunks and dispatch rules and resolves which
// agent an inbound call belongs to.
type Manager struct {
	db *gorm.DB
}

// NewManager creates a trunk manager backed by the database.
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// CreateTrunk validates and stores a trunk.
func (m *Manager) CreateTrunk(t *models.SIPTrunk) error {
	if t.Name == "" {
		return errors.New("trunk name is required")
	}
	if t.Provider == "" {
		return errors.New("trunk provider is required")
	}

	for _, number := range t.PhoneNumbers {
		existing, err := models.GetSIPTrunkByPhoneNumber(m.db, number)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if existing != nil {
			return fmt.Errorf("phone number %s already assigned to trunk %q", number, existing.Name)
		}
	}

	if err := models.CreateSIPTrunk(m.db, t); err != nil {
		return fmt.Errorf("failed to create trunk: %w", err)
	}
	logger.Info("trunk created",
		zap.String("name", t.Name),
		zap.String("provider", string(t.Provider)),
		zap.Int("numbers", len(t.PhoneNumbers)))
	return nil
}

// ListTrunks lists all trunks.
func (m *Manager) ListTrunks() ([]models.SIPTrunk, error) {
	var trunks []models.SIPTrunk
	err := m.db.Find(&trunks).Error
	return trunks, err
}

// DeleteTrunk removes a trunk.
func (m *Manager) DeleteTrunk(id uint) error {
	if err := models.DeleteSIPTrunk(m.db, id); err != nil {
		return fmt.Errorf("failed to delete trunk %d: %w", id, err)
	}
	logger.Info("trunk deleted", zap.Uint("id", id))
	return nil
}

// CreateRule validates and stores a dispatch rule.
func (m *Manager) CreateRule(r *models.DispatchRule) error {
	if r.Name == "" {
		return errors.New("rule name is required")
	}
	if r.NumberPattern == "" {
		return errors.New("rule number pattern is required")
	}
	if strings.Count(r.NumberPattern, "*") > 1 ||
		(strings.Contains(r.NumberPattern, "*") && !strings.HasSuffix(r.NumberPattern, "*")) {
		return fmt.Errorf("invalid number pattern %q: wildcard only allowed as suffix", r.NumberPattern)
	}

	if err := models.CreateDispatchRule(m.db, r); err != nil {
		return fmt.Errorf("failed to create dispatch rule: %w", err)
	}
	logger.Info("dispatch rule created",
		zap.String("name", r.Name),
		zap.String("pattern", r.NumberPattern),
		zap.Int("priority", r.Priority))
	return nil
}

// ListRules lists all dispatch rules ordered by priority.
func (m *Manager) ListRules() ([]models.DispatchRule, error) {
	return models.ListDispatchRules(m.db)
}

// DeleteRule removes a dispatch rule.
func (m *Manager) DeleteRule(id uint) error {
	if err := models.DeleteDispatchRule(m.db, id); err != nil {
		return fmt.Errorf("failed to delete dispatch rule %d: %w", id, err)
	}
	logger.Info("dispatch rule deleted", zap.Uint("id", id))
	return nil
}

// Resolve finds the dispatch rule and trunk for a called number. A missing
// rule is not fatal, the call proceeds with defaults.
func (m *Manager) Resolve(calledNumber string) (*models.DispatchRule, *models.SIPTrunk) {
	trunk, err := models.GetSIPTrunkByPhoneNumber(m.db, calledNumber)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("trunk lookup failed", zap.String("number", calledNumber), zap.Error(err))
		}
		trunk, _ = models.GetDefaultSIPTrunk(m.db)
	}
	if trunk != nil {
		if err := models.TouchSIPTrunkCall(m.db, trunk.ID); err != nil {
			logger.Warn("failed to update trunk stats", zap.Uint("trunk", trunk.ID), zap.Error(err))
		}
	}

	rule, err := models.MatchDispatchRule(m.db, calledNumber)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("dispatch rule lookup failed", zap.String("number", calledNumber), zap.Error(err))
		}
		return nil, trunk
	}
	return rule, trunk
}
