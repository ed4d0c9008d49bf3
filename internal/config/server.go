package config

func GetServerAddr() string {
	return GetEnvOrDefault("SERVER_ADDR", ":9000")
}

func GetAppName() string {
	return GetEnvOrDefault("APP_NAME", "AnimeStream")
}

// GetEnv returns the deployment environment, DEV when unset.
func GetEnv() string {
	return GetEnvOrDefault("ENV", "DEV")
}
