package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/minh/wayloop/internal/model"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Qdrant    QdrantConfig
	Embedding EmbeddingConfig
	Routing   RoutingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string        `mapstructure:"POSTGRES_HOST"`
	Port         int           `mapstructure:"POSTGRES_PORT"`
	User         string        `mapstructure:"POSTGRES_USER"`
	Password     string        `mapstructure:"POSTGRES_PASSWORD"`
	DBName       string        `mapstructure:"POSTGRES_DB"`
	SSLMode      string        `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns     int32         `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns     int32         `mapstructure:"POSTGRES_MIN_CONNS"`
	QueryTimeout time.Duration `mapstructure:"POSTGRES_QUERY_TIMEOUT"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host      string        `mapstructure:"REDIS_HOST"`
	Port      int           `mapstructure:"REDIS_PORT"`
	Password  string        `mapstructure:"REDIS_PASSWORD"`
	DB        int           `mapstructure:"REDIS_DB"`
	PoolSize  int           `mapstructure:"REDIS_POOL_SIZE"`
	OpTimeout time.Duration `mapstructure:"REDIS_OP_TIMEOUT"`
}

// QdrantConfig holds vector-index connection settings.
type QdrantConfig struct {
	Host         string        `mapstructure:"QDRANT_HOST"`
	Port         int           `mapstructure:"QDRANT_PORT"`
	APIKey       string        `mapstructure:"QDRANT_API_KEY"`
	UseTLS       bool          `mapstructure:"QDRANT_USE_TLS"`
	Collection   string        `mapstructure:"QDRANT_COLLECTION"`
	QueryTimeout time.Duration `mapstructure:"QDRANT_QUERY_TIMEOUT"`
}

// EmbeddingConfig holds embedding-service settings.
type EmbeddingConfig struct {
	URL           string        `mapstructure:"EMBEDDING_URL"`
	Timeout       time.Duration `mapstructure:"EMBEDDING_TIMEOUT"`
	UseAsymmetric bool          `mapstructure:"EMBEDDING_ASYMMETRIC"` // "query:" / "passage:" prefixes
}

// ModeProfile fixes the spatial reach and speed of one transportation mode.
type ModeProfile struct {
	SpeedKmph    float64 // average speed for travel-time estimation
	KRing        int     // H3 k-ring enumerated around the query cell
	RadiusMeters float64 // hard cutoff on candidate distance
}

// RoutingConfig holds every planning knob: H3 geometry, the per-mode table,
// circular-routing behavior, meal windows, stay time, cache lifetimes, and
// pool sizing.
type RoutingConfig struct {
	H3Resolution int `mapstructure:"H3_RESOLUTION"`

	Modes map[model.TransportMode]ModeProfile

	UseCircularRouting   bool    `mapstructure:"USE_CIRCULAR_ROUTING"`
	CircularToleranceDeg float64 `mapstructure:"CIRCULAR_ANGLE_TOLERANCE"`
	DirectionPreference  string  `mapstructure:"CIRCULAR_DIRECTION_PREFERENCE"` // right | left | auto

	DefaultStayMinutes float64 `mapstructure:"DEFAULT_STAY_MINUTES"`

	LunchStart  string `mapstructure:"LUNCH_WINDOW_START"`
	LunchEnd    string `mapstructure:"LUNCH_WINDOW_END"`
	DinnerStart string `mapstructure:"DINNER_WINDOW_START"`
	DinnerEnd   string `mapstructure:"DINNER_WINDOW_END"`

	UserCacheTTL time.Duration `mapstructure:"USER_CACHE_TTL"`
	CellCacheTTL time.Duration `mapstructure:"CELL_CACHE_TTL"`
	POICacheTTL  time.Duration `mapstructure:"POI_CACHE_TTL"`

	MaxCandidatesFloor int `mapstructure:"MAX_CANDIDATES_FLOOR"`
	MaxKRingExpansion  int `mapstructure:"MAX_KRING_EXPANSION"`

	BuilderWorkers int `mapstructure:"BUILDER_WORKERS"` // bounded pool for CPU-bound construction
}

// Profile returns the mode's profile; ok is false for unknown modes.
func (r *RoutingConfig) Profile(mode model.TransportMode) (ModeProfile, bool) {
	p, ok := r.Modes[mode]
	return p, ok
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "5s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "wayloop")
	viper.SetDefault("POSTGRES_PASSWORD", "wayloop_secret")
	viper.SetDefault("POSTGRES_DB", "wayloop_db")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")
	viper.SetDefault("POSTGRES_MAX_CONNS", 50)
	viper.SetDefault("POSTGRES_MIN_CONNS", 10)
	viper.SetDefault("POSTGRES_QUERY_TIMEOUT", "60s")

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_POOL_SIZE", 100)
	viper.SetDefault("REDIS_OP_TIMEOUT", "5s")

	viper.SetDefault("QDRANT_HOST", "localhost")
	viper.SetDefault("QDRANT_PORT", 6334)
	viper.SetDefault("QDRANT_API_KEY", "")
	viper.SetDefault("QDRANT_USE_TLS", false)
	viper.SetDefault("QDRANT_COLLECTION", "poi_embeddings")
	viper.SetDefault("QDRANT_QUERY_TIMEOUT", "10s")

	viper.SetDefault("EMBEDDING_URL", "http://localhost:8501/embed")
	viper.SetDefault("EMBEDDING_TIMEOUT", "30s")
	viper.SetDefault("EMBEDDING_ASYMMETRIC", true)

	viper.SetDefault("H3_RESOLUTION", 9)
	viper.SetDefault("USE_CIRCULAR_ROUTING", true)
	viper.SetDefault("CIRCULAR_ANGLE_TOLERANCE", 10.0)
	viper.SetDefault("CIRCULAR_DIRECTION_PREFERENCE", "auto")
	viper.SetDefault("DEFAULT_STAY_MINUTES", 30.0)
	viper.SetDefault("LUNCH_WINDOW_START", "11:30")
	viper.SetDefault("LUNCH_WINDOW_END", "13:30")
	viper.SetDefault("DINNER_WINDOW_START", "18:00")
	viper.SetDefault("DINNER_WINDOW_END", "20:00")
	viper.SetDefault("USER_CACHE_TTL", "3600s")
	viper.SetDefault("CELL_CACHE_TTL", "1800s")
	viper.SetDefault("POI_CACHE_TTL", "3600s")
	viper.SetDefault("MAX_CANDIDATES_FLOOR", 50)
	viper.SetDefault("MAX_KRING_EXPANSION", 12)
	viper.SetDefault("BUILDER_WORKERS", 8)

	// Per-mode reach/speed table.
	viper.SetDefault("WALKING_SPEED_KMPH", 5.0)
	viper.SetDefault("WALKING_KRING", 2)
	viper.SetDefault("WALKING_RADIUS_M", 2000.0)
	viper.SetDefault("BICYCLING_SPEED_KMPH", 15.0)
	viper.SetDefault("BICYCLING_KRING", 4)
	viper.SetDefault("BICYCLING_RADIUS_M", 5000.0)
	viper.SetDefault("TRANSIT_SPEED_KMPH", 25.0)
	viper.SetDefault("TRANSIT_KRING", 6)
	viper.SetDefault("TRANSIT_RADIUS_M", 8000.0)
	viper.SetDefault("FLEXIBLE_SPEED_KMPH", 30.0)
	viper.SetDefault("FLEXIBLE_KRING", 7)
	viper.SetDefault("FLEXIBLE_RADIUS_M", 10000.0)
	viper.SetDefault("DRIVING_SPEED_KMPH", 40.0)
	viper.SetDefault("DRIVING_KRING", 8)
	viper.SetDefault("DRIVING_RADIUS_M", 12000.0)

	// Try to read .env file. If it doesn't exist (e.g., inside Docker),
	// env vars injected by docker-compose env_file are used instead.
	_ = viper.ReadInConfig()

	cfg := &Config{}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         viper.GetString("SERVER_HOST"),
		Port:         viper.GetInt("SERVER_PORT"),
		ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  viper.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Postgres ────────────────────────────────────────
	cfg.Postgres = PostgresConfig{
		Host:         viper.GetString("POSTGRES_HOST"),
		Port:         viper.GetInt("POSTGRES_PORT"),
		User:         viper.GetString("POSTGRES_USER"),
		Password:     viper.GetString("POSTGRES_PASSWORD"),
		DBName:       viper.GetString("POSTGRES_DB"),
		SSLMode:      viper.GetString("POSTGRES_SSLMODE"),
		MaxConns:     viper.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns:     viper.GetInt32("POSTGRES_MIN_CONNS"),
		QueryTimeout: viper.GetDuration("POSTGRES_QUERY_TIMEOUT"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		Host:      viper.GetString("REDIS_HOST"),
		Port:      viper.GetInt("REDIS_PORT"),
		Password:  viper.GetString("REDIS_PASSWORD"),
		DB:        viper.GetInt("REDIS_DB"),
		PoolSize:  viper.GetInt("REDIS_POOL_SIZE"),
		OpTimeout: viper.GetDuration("REDIS_OP_TIMEOUT"),
	}

	// ── Qdrant ──────────────────────────────────────────
	cfg.Qdrant = QdrantConfig{
		Host:         viper.GetString("QDRANT_HOST"),
		Port:         viper.GetInt("QDRANT_PORT"),
		APIKey:       viper.GetString("QDRANT_API_KEY"),
		UseTLS:       viper.GetBool("QDRANT_USE_TLS"),
		Collection:   viper.GetString("QDRANT_COLLECTION"),
		QueryTimeout: viper.GetDuration("QDRANT_QUERY_TIMEOUT"),
	}

	// ── Embedding ───────────────────────────────────────
	cfg.Embedding = EmbeddingConfig{
		URL:           viper.GetString("EMBEDDING_URL"),
		Timeout:       viper.GetDuration("EMBEDDING_TIMEOUT"),
		UseAsymmetric: viper.GetBool("EMBEDDING_ASYMMETRIC"),
	}

	// ── Routing ─────────────────────────────────────────
	cfg.Routing = RoutingConfig{
		H3Resolution:         viper.GetInt("H3_RESOLUTION"),
		UseCircularRouting:   viper.GetBool("USE_CIRCULAR_ROUTING"),
		CircularToleranceDeg: viper.GetFloat64("CIRCULAR_ANGLE_TOLERANCE"),
		DirectionPreference:  viper.GetString("CIRCULAR_DIRECTION_PREFERENCE"),
		DefaultStayMinutes:   viper.GetFloat64("DEFAULT_STAY_MINUTES"),
		LunchStart:           viper.GetString("LUNCH_WINDOW_START"),
		LunchEnd:             viper.GetString("LUNCH_WINDOW_END"),
		DinnerStart:          viper.GetString("DINNER_WINDOW_START"),
		DinnerEnd:            viper.GetString("DINNER_WINDOW_END"),
		UserCacheTTL:         viper.GetDuration("USER_CACHE_TTL"),
		CellCacheTTL:         viper.GetDuration("CELL_CACHE_TTL"),
		POICacheTTL:          viper.GetDuration("POI_CACHE_TTL"),
		MaxCandidatesFloor:   viper.GetInt("MAX_CANDIDATES_FLOOR"),
		MaxKRingExpansion:    viper.GetInt("MAX_KRING_EXPANSION"),
		BuilderWorkers:       viper.GetInt("BUILDER_WORKERS"),
		Modes: map[model.TransportMode]ModeProfile{
			model.ModeWalking: {
				SpeedKmph:    viper.GetFloat64("WALKING_SPEED_KMPH"),
				KRing:        viper.GetInt("WALKING_KRING"),
				RadiusMeters: viper.GetFloat64("WALKING_RADIUS_M"),
			},
			model.ModeBicycling: {
				SpeedKmph:    viper.GetFloat64("BICYCLING_SPEED_KMPH"),
				KRing:        viper.GetInt("BICYCLING_KRING"),
				RadiusMeters: viper.GetFloat64("BICYCLING_RADIUS_M"),
			},
			model.ModeTransit: {
				SpeedKmph:    viper.GetFloat64("TRANSIT_SPEED_KMPH"),
				KRing:        viper.GetInt("TRANSIT_KRING"),
				RadiusMeters: viper.GetFloat64("TRANSIT_RADIUS_M"),
			},
			model.ModeFlexible: {
				SpeedKmph:    viper.GetFloat64("FLEXIBLE_SPEED_KMPH"),
				KRing:        viper.GetInt("FLEXIBLE_KRING"),
				RadiusMeters: viper.GetFloat64("FLEXIBLE_RADIUS_M"),
			},
			model.ModeDriving: {
				SpeedKmph:    viper.GetFloat64("DRIVING_SPEED_KMPH"),
				KRing:        viper.GetInt("DRIVING_KRING"),
				RadiusMeters: viper.GetFloat64("DRIVING_RADIUS_M"),
			},
		},
	}

	return cfg, nil
}
