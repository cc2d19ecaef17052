package config

// ProxyConfig holds runtime configuration for the edge resolver.
type ProxyConfig struct {
	Addr        string
	MetricsAddr string
	LogLevel    string
	ServingMode string
	Storage     StorageConfig
}

// LoadProxyConfig constructs a ProxyConfig from environment variables.
func LoadProxyConfig() ProxyConfig {
	return ProxyConfig{
		Addr:        GetString("PROXY_ADDR", ":8000"),
		MetricsAddr: GetString("PROXY_METRICS_ADDR", ":9100"),
		LogLevel:    GetString("LOG_LEVEL", "info"),
		ServingMode: GetString("SERVING_MODE", "subdomain"),
		Storage:     loadStorageConfig(),
	}
}
