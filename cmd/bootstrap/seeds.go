package bootstrap

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/internal/models"
	"github.com/LingByte/LingBridge/pkg/config"
	"github.com/LingByte/LingBridge/pkg/constants"
	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/utils"
)

type SeedService struct {
	db *gorm.DB
}

func (s *SeedService) SeedAll() error {
	if err := s.seedConfigs(); err != nil {
		return err
	}
	if err := s.seedTelephony(); err != nil {
		return err
	}
	return nil
}

func (s *SeedService) seedConfigs() error {
	defaults := []utils.Config{
		{Key: constants.KEY_SITE_URL, Desc: "Site URL", Autoload: true, Public: true, Format: "text", Value: func() string {
			if config.GlobalConfig.Server.URL != "" {
				return config.GlobalConfig.Server.URL
			}
			return "https://lingecho.com"
		}()},
		{Key: constants.KEY_SITE_NAME, Desc: "Site Name", Autoload: true, Public: true, Format: "text", Value: func() string {
			if config.GlobalConfig.Server.Name != "" {
				return config.GlobalConfig.Server.Name
			}
			return "LingBridge"
		}()},
		{Key: constants.KEY_SITE_LOGO_URL, Desc: "Site Logo", Autoload: true, Public: true, Format: "text", Value: func() string {
			if config.GlobalConfig.Server.Logo != "" {
				return config.GlobalConfig.Server.Logo
			}
			return "/static/img/favicon.png"
		}()},
		{Key: constants.KEY_SITE_DESCRIPTION, Desc: "Site Description", Autoload: true, Public: true, Format: "text", Value: func() string {
			if config.GlobalConfig.Server.Desc != "" {
				return config.GlobalConfig.Server.Desc
			}
			return "LingBridge - Realtime Voice Bridge for Phone Calls"
		}()},
	}
	for _, cfg := range defaults {
		var existingConfig utils.Config
		result := s.db.Where("`key` = ?", cfg.Key).First(&existingConfig)

		if result.Error != nil {
			if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return result.Error
			}
			if err := s.db.Create(&cfg).Error; err != nil {
				return err
			}
		} else {
			existingConfig.Value = cfg.Value
			existingConfig.Desc = cfg.Desc
			existingConfig.Autoload = cfg.Autoload
			existingConfig.Public = cfg.Public
			existingConfig.Format = cfg.Format
			if err := s.db.Save(&existingConfig).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// seedTelephony creates a default trunk and dispatch rule so a fresh install
// can take calls without touching the admin API first.
func (s *SeedService) seedTelephony() error {
	var existing models.SIPTrunk
	result := s.db.Where("name = ?", "default").First(&existing)
	if result.Error == nil {
		logger.Info("default trunk already exists, skipping seed")
		return nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check existing trunk: %w", result.Error)
	}

	trunk := &models.SIPTrunk{
		Name:        "default",
		Description: "Default inbound trunk",
		Provider:    models.SIPTrunkProviderTwilio,
		Status:      models.SIPTrunkStatusActive,
		Enabled:     true,
		IsDefault:   true,
	}
	if err := models.CreateSIPTrunk(s.db, trunk); err != nil {
		return fmt.Errorf("failed to create default trunk: %w", err)
	}

	rule := &models.DispatchRule{
		TrunkID:       trunk.ID,
		Name:          "catch-all",
		NumberPattern: "+*",
		AgentName:     "assistant",
		RoomPrefix:    constants.ROOM_PREFIX,
		Priority:      1000,
		Enabled:       true,
	}
	if err := models.CreateDispatchRule(s.db, rule); err != nil {
		logger.Error("failed to create default dispatch rule", zap.Error(err))
	}

	logger.Info("telephony defaults seeded",
		zap.String("trunk", trunk.Name),
		zap.String("rule", rule.Name))
	return nil
}
