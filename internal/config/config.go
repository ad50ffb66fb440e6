package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                   int
	BackendURL             string        // Base URL of the detection service (POST <BackendURL>/detect)
	BackendTimeout         time.Duration // Upper bound for a single detection exchange
	CameraEnabled          bool          // false = upload-only host, camera mode reports unsupported
	CameraUserIndex        int           // Device index of the front ("user") camera
	CameraEnvironmentIndex int           // Device index of the rear ("environment") camera
	CameraWidth            int
	CameraHeight           int
	PreviewInterval        time.Duration
	MaxUploadBytes         int64
	StaticDirectory        string
	LogDirectory           string
}

// Load reads the optional .env file (ENV_FILE, default ".env") and then
// builds the configuration from the environment.
func Load() *Config {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Could not load %s: %v", envFile, err)
	}

	return &Config{
		Port:                   getEnvAsInt("PORT", 8080),
		BackendURL:             getEnv("BACKEND_URL", "http://localhost:5000"),
		BackendTimeout:         time.Duration(getEnvAsInt("BACKEND_TIMEOUT", 60)) * time.Second,
		CameraEnabled:          getEnvAsBool("CAMERA_ENABLED", true),
		CameraUserIndex:        getEnvAsInt("CAMERA_USER_INDEX", 0),
		CameraEnvironmentIndex: getEnvAsInt("CAMERA_ENVIRONMENT_INDEX", 1),
		CameraWidth:            getEnvAsInt("CAMERA_WIDTH", 1280),
		CameraHeight:           getEnvAsInt("CAMERA_HEIGHT", 720),
		PreviewInterval:        time.Duration(getEnvAsInt("PREVIEW_INTERVAL_MS", 200)) * time.Millisecond,
		MaxUploadBytes:         getEnvAsInt64("MAX_UPLOAD_BYTES", 10<<20),
		StaticDirectory:        getEnv("STATIC_DIR", "static"),
		LogDirectory:           getEnv("LOG_DIR", filepath.Join(".", "logs")),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
