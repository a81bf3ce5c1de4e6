package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		ObjectStore: ObjectStoreConfig{
			Endpoint:  "localhost:9000",
			AccessKey: "",
			SecretKey: "",
			Secure:    false,
			Bucket:    "videos-processed",
		},
		Storage: StorageConfig{
			Path:       "~/.config/emosync",
			SQLiteFile: "emosync.db",
		},
		Sync: SyncConfig{
			IntervalMinutes:     60,
			MisfireGraceSeconds: 60,
			MaxImportsPerRun:    10,
		},
		Daemon: DaemonConfig{
			Host: "127.0.0.1",
			Port: 8731,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
