package utils

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LingByte/LingBridge/pkg/constants"
)

func newConfigDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Config{}))
	return db
}

func TestGetConfigValueReadsThroughCache(t *testing.T) {
	db := newConfigDB(t)
	InitGlobalCache(16, time.Minute)

	require.NoError(t, db.Create(&Config{
		Key: constants.KEY_SITE_NAME, Value: "LingBridge", Format: "text",
	}).Error)

	value, err := GetConfigValue(db, constants.KEY_SITE_NAME)
	require.NoError(t, err)
	assert.Equal(t, "LingBridge", value)

	// A direct database update is not visible until the cache entry expires.
	require.NoError(t, db.Model(&Config{}).
		Where("`key` = ?", constants.KEY_SITE_NAME).
		Update("value", "Renamed").Error)

	value, err = GetConfigValue(db, constants.KEY_SITE_NAME)
	require.NoError(t, err)
	assert.Equal(t, "LingBridge", value)
}

func TestGetConfigValueMissingKey(t *testing.T) {
	db := newConfigDB(t)
	InitGlobalCache(16, time.Minute)

	_, err := GetConfigValue(db, "no_such_key")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestGetConfigValueWithoutCache(t *testing.T) {
	db := newConfigDB(t)
	globalCache = nil

	require.NoError(t, db.Create(&Config{
		Key: constants.KEY_SITE_URL, Value: "https://lingecho.com", Format: "text",
	}).Error)

	value, err := GetConfigValue(db, constants.KEY_SITE_URL)
	require.NoError(t, err)
	assert.Equal(t, "https://lingecho.com", value)
}
