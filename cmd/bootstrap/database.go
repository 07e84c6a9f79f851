package bootstrap

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LingByte/LingBridge/internal/models"
	"github.com/LingByte/LingBridge/pkg/config"
	"github.com/LingByte/LingBridge/pkg/utils"
)

// Options controls database setup behavior.
type Options struct {
	InitSQLPath string // optional .sql script executed before migration
	AutoMigrate bool   // whether to migrate entities
	SeedNonProd bool   // seed default configuration outside production
}

// SetupDatabase opens the configured database, runs migrations and seeds
// defaults. The writer receives gorm's SQL log.
func SetupDatabase(w io.Writer, opts *Options) (*gorm.DB, error) {
	if opts == nil {
		opts = &Options{}
	}

	driver := config.GlobalConfig.Database.Driver
	dsn := config.GlobalConfig.Database.DSN

	logLevel := gormlogger.Warn
	if config.GlobalConfig.Server.Mode == "development" {
		logLevel = gormlogger.Info
	}
	gormConfig := &gorm.Config{
		Logger: gormlogger.New(
			log.New(w, "\r\n", log.LstdFlags),
			gormlogger.Config{
				SlowThreshold: 200 * time.Millisecond,
				LogLevel:      logLevel,
			},
		),
	}

	var db *gorm.DB
	var err error
	switch driver {
	case "mysql":
		db, err = gorm.Open(mysql.Open(dsn), gormConfig)
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite", "":
		db, err = gorm.Open(sqlite.Open(dsn), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database (%s): %w", driver, err)
	}

	if opts.InitSQLPath != "" {
		if err := execInitSQL(db, opts.InitSQLPath); err != nil {
			return nil, err
		}
	}

	if opts.AutoMigrate {
		err = db.AutoMigrate(
			&utils.Config{},
			&models.SIPTrunk{},
			&models.DispatchRule{},
			&models.CallRecord{},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to migrate entities: %w", err)
		}
	}

	if opts.SeedNonProd && config.GlobalConfig.Server.Mode != "production" {
		seeder := &SeedService{db: db}
		if err := seeder.SeedAll(); err != nil {
			return nil, fmt.Errorf("failed to seed defaults: %w", err)
		}
	}

	return db, nil
}

// execInitSQL runs each statement of a .sql script, splitting on ';'.
func execInitSQL(db *gorm.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read init script %s: %w", path, err)
	}
	for _, stmt := range strings.Split(string(data), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("init script statement failed: %w", err)
		}
	}
	return nil
}
