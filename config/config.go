package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Firebase  FirebaseConfig
	Isochrone IsochroneConfig
	Places    PlacesConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type FirebaseConfig struct {
	ServiceAccountPath string
}

// IsochroneConfig points at the travel-time provider.
type IsochroneConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RegionProbeTTL caches the short probe isochrones used for region
	// resolution.
	RegionProbeTTL time.Duration
}

// PlacesConfig points at the place-search provider.
type PlacesConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Server: ServerConfig{
			Port:         getenv("PORT", "8080"),
			Env:          getenv("ENV", "development"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             getenv("DATABASE_DSN", "convene:convene@tcp(localhost:3306)/convene?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    getenvInt("DATABASE_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getenvInt("DATABASE_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: time.Hour,
		},
		Firebase: FirebaseConfig{
			ServiceAccountPath: getenv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		},
		Isochrone: IsochroneConfig{
			BaseURL:        getenv("ISOCHRONE_BASE_URL", "https://service.targomo.com"),
			APIKey:         getenv("ISOCHRONE_API_KEY", ""),
			Timeout:        30 * time.Second,
			RegionProbeTTL: 10 * time.Minute,
		},
		Places: PlacesConfig{
			BaseURL: getenv("PLACES_BASE_URL", "https://maps.googleapis.com/maps/api"),
			APIKey:  getenv("MAPS_API_KEY", ""),
			Timeout: 15 * time.Second,
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
