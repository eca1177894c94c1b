package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	ServerPort      string        `mapstructure:"SERVER_PORT"`
	BackendURL      string        `mapstructure:"BACKEND_URL"`
	RedisAddr       string        `mapstructure:"REDIS_ADDR"`
	RedisPassword   string        `mapstructure:"REDIS_PASSWORD"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	SessionToken    string        `mapstructure:"SESSION_TOKEN"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	MapTilerKey     string        `mapstructure:"MAPTILER_KEY"`
	MapCenterLng    float64       `mapstructure:"MAP_CENTER_LNG"`
	MapCenterLat    float64       `mapstructure:"MAP_CENTER_LAT"`
	MapZoom         float64       `mapstructure:"MAP_ZOOM"`
	TreeMarkerColor string        `mapstructure:"TREE_MARKER_COLOR"`
	ViewID          string        `mapstructure:"VIEW_ID"`
}

var loadDotenv = func() error { return godotenv.Load() }

// Load reads an optional .env file and then the process environment.
func Load() Config {
	_ = loadDotenv()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("SERVER_PORT", ":8090")
	v.SetDefault("BACKEND_URL", "http://localhost:3000")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("SESSION_TOKEN", "")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("MAPTILER_KEY", "")
	v.SetDefault("MAP_CENTER_LNG", 77.209)
	v.SetDefault("MAP_CENTER_LAT", 28.6139)
	v.SetDefault("MAP_ZOOM", 9)
	v.SetDefault("TREE_MARKER_COLOR", "#10B981")
	v.SetDefault("VIEW_ID", "main")

	var cfg Config
	_ = v.Unmarshal(&cfg)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	return cfg
}
