package config

import "time"

// BuilderConfig holds runtime configuration for the build worker.
type BuilderConfig struct {
	Workdir      string
	BuildCommand string
	OutputDir    string
	GitTimeout   time.Duration
	GitDepth     int
	BuildTimeout time.Duration
	UploadBatch  int
	Broker       BrokerConfig
	Storage      StorageConfig
}

// LoadBuilderConfig constructs a BuilderConfig from environment variables.
func LoadBuilderConfig() BuilderConfig {
	return BuilderConfig{
		Workdir:      GetString("BUILDER_WORKDIR", "/tmp/maybe-vercel/builds"),
		BuildCommand: GetString("BUILD_COMMAND", "npm install && npm run build"),
		OutputDir:    GetString("BUILD_OUTPUT_DIR", "dist"),
		GitTimeout:   GetSeconds("GIT_TIMEOUT_SECONDS", 0),
		GitDepth:     GetInt("GIT_CLONE_DEPTH", 1),
		BuildTimeout: GetSeconds("BUILD_TIMEOUT_SECONDS", 0),
		UploadBatch:  GetInt("UPLOAD_BATCH_SIZE", 10),
		Broker:       loadBrokerConfig(),
		Storage:      loadStorageConfig(),
	}
}
