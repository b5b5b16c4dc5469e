package main

import (
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/config"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/database"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/event"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/logger"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/server"
)

func main() {
	cfg, err := config.ReadConfig()
	if err != nil {
		logger.FatalF("Error occured while reading config %v", err)
		return
	}
	loggerCallback := logger.Init()
	logger.Debug("Application initializing...")
	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)
	defer cleaner.Clean()

	var store database.Store
	if cfg.Database.InMemory {
		logger.Warn("Running with the in-memory store, nothing will be persisted")
		store = database.NewMemoryStore()
	} else {
		if err := database.ConnectDatabase(); err != nil {
			logger.FatalF("Error occured while initializing database, details: %v", err)
			return
		}
		store = database.NewMongoStore()
	}

	if err := server.New(cfg, store).Start(); err != nil {
		logger.FatalF("Error occured while running server, details: %v", err)
	}
}
