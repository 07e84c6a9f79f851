package utils

import (
	"time"

	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/pkg/constants"
)

// Config is a key/value site configuration row seeded at bootstrap.
type Config struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`

	Key      string `json:"key" gorm:"size:128;uniqueIndex;not null"`
	Value    string `json:"value" gorm:"type:text"`
	Desc     string `json:"desc" gorm:"size:256"`
	Format   string `json:"format" gorm:"size:32;default:'text'"`
	Autoload bool   `json:"autoload" gorm:"default:false"`
	Public   bool   `json:"public" gorm:"default:false"`
}

func (Config) TableName() string {
	return constants.TABLE_CONFIGS
}

// GetConfigValue reads a site config value through the global cache. Misses
// fall back to the database and populate the cache for the TTL.
func GetConfigValue(db *gorm.DB, key string) (string, error) {
	cacheKey := "config:" + key
	if cached, ok := CacheGet(cacheKey); ok {
		if value, ok := cached.(string); ok {
			return value, nil
		}
	}

	var cfg Config
	if err := db.Where("`key` = ?", key).First(&cfg).Error; err != nil {
		return "", err
	}
	CacheSet(cacheKey, cfg.Value)
	return cfg.Value, nil
}
