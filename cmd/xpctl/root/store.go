package root

import (
	"activity-xp/internal/config"
	"activity-xp/internal/storage"
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Read()
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	return cfg, nil
}

func openStore() (*storage.Store, config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, nil, err
	}
	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, cfg, nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, cfg, nil, err
	}
	return store, cfg, store.Close, nil
}
