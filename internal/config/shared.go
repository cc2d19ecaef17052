package config

// BrokerConfig selects and addresses the publish/subscribe broker.
type BrokerConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
}

// StorageConfig selects and addresses the object store.
type StorageConfig struct {
	Backend      string
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	AccessKeyID  string
	SecretKey    string
	Dir          string
}

func loadBrokerConfig() BrokerConfig {
	return BrokerConfig{
		Backend:       GetString("BROKER_BACKEND", "redis"),
		RedisAddr:     GetString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: GetString("REDIS_PASSWORD", ""),
		RedisDB:       GetInt("REDIS_DB", 0),
		NATSURL:       GetString("NATS_URL", "nats://localhost:4222"),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:      GetString("STORAGE_BACKEND", "s3"),
		Bucket:       GetString("S3_BUCKET", "vercel-clone-builder"),
		Region:       GetString("S3_REGION", "ap-southeast-2"),
		Endpoint:     GetString("S3_ENDPOINT", ""),
		UsePathStyle: GetBool("S3_USE_PATH_STYLE", false),
		AccessKeyID:  GetString("S3_ACCESS_KEY_ID", ""),
		SecretKey:    GetString("S3_SECRET_ACCESS_KEY", ""),
		Dir:          GetString("STORAGE_DIR", "/tmp/maybe-vercel/objects"),
	}
}
