package main

import (
	"flag"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/LingByte/LingBridge/cmd/bootstrap"
	"github.com/LingByte/LingBridge/pkg/bridge"
	"github.com/LingByte/LingBridge/pkg/config"
	"github.com/LingByte/LingBridge/pkg/fallback"
	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/rooms"
	"github.com/LingByte/LingBridge/pkg/tools"
	"github.com/LingByte/LingBridge/pkg/trunk"
	"github.com/LingByte/LingBridge/pkg/utils"
	"github.com/LingByte/LingBridge/pkg/webhook"
)

func main() {
	// 1. Parse Command Line Parameters
	mode := flag.String("mode", "", "running environment (development, test, production)")
	init := flag.Bool("init", false, "initialize database")
	initSQL := flag.String("init-sql", "", "path to database init .sql script (optional)")
	flag.Parse()

	// 2. Set Environment Variables
	if *mode != "" {
		os.Setenv("APP_ENV", *mode)
	}

	// 3. Load Global Configuration
	if err := config.Load(); err != nil {
		panic("config load failed: " + err.Error())
	}
	if err := config.GlobalConfig.Validate(); err != nil {
		panic("config validation failed: " + err.Error())
	}

	// 4. Load Log Configuration
	err := logger.Init(&config.GlobalConfig.Log, config.GlobalConfig.Server.Mode)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 5. Print Banner
	if err := bootstrap.PrintBannerFromFile("banner.txt"); err != nil {
		logger.Warn("banner print failed", zap.Error(err))
	}

	// 6. Load Data Source
	db, err := bootstrap.SetupDatabase(os.Stdout, &bootstrap.Options{
		InitSQLPath: *initSQL, // Can be specified via --init-sql
		AutoMigrate: *init,    // Whether to migrate entities
		SeedNonProd: *init,    // Non-production default configuration
	})
	if err != nil {
		logger.Error("database setup failed", zap.Error(err))
		return
	}

	cfg := config.GlobalConfig
	logger.Info("checked config -- addr: ", zap.String("addr", cfg.Server.Addr))
	logger.Info("checked config -- db-driver: ",
		zap.String("db-driver", cfg.Database.Driver), zap.String("dsn", cfg.Database.DSN))
	logger.Info("checked config -- mode: ", zap.String("mode", cfg.Server.Mode))
	logger.Info("checked config -- realtime: ",
		zap.Bool("enabled", cfg.Realtime.Enabled), zap.Int("percentage", cfg.Realtime.Percentage))

	// 7. Initialize Global Cache
	utils.InitGlobalCache(1024, 5*time.Minute)

	// 8. Build Services
	registry := bridge.NewRegistry()

	var weather *tools.WeatherService
	if cfg.Weather.BaseURL != "" {
		weather = tools.NewWeatherService(
			cfg.Weather.BaseURL, cfg.Weather.Timeout, cfg.Weather.CacheSize, cfg.Weather.CacheTTL)
	}

	var weatherLookup fallback.WeatherLookup
	if weather != nil {
		weatherLookup = weather.Lookup
	}
	loop := fallback.NewLoop(
		fallback.NewOpenAICompleter(cfg.Fallback.APIKey, cfg.Fallback.BaseURL, cfg.Fallback.Model, cfg.Fallback.Temperature, logrus.StandardLogger()),
		weatherLookup,
		fallback.Options{
			SystemPrompt: cfg.Realtime.Instructions,
			Language:     cfg.Realtime.Language,
			MaxTurns:     cfg.Fallback.MaxTurns,
		},
		logrus.StandardLogger(),
	)

	var roomSvc rooms.Service
	if cfg.Rooms.URL != "" {
		roomSvc = rooms.NewClient(cfg.Rooms.URL, cfg.Rooms.APIKey, cfg.Rooms.APISecret, cfg.Rooms.EmptyTimeout)
	}

	trunks := trunk.NewManager(db)

	// 9. Serve HTTP
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	handler := webhook.NewHandler(db, cfg, registry, loop, roomSvc, trunks, weather)
	handler.RegisterRoutes(engine)

	logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
	if err := engine.Run(cfg.Server.Addr); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
