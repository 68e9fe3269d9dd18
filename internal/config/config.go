package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env             string        `mapstructure:"ENV"`
	Port            string        `mapstructure:"PORT"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	AutoMigrate     bool          `mapstructure:"DB_AUTO_MIGRATE"`
	AdminKey        string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed     string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	MaxUploadSizeMB int64         `mapstructure:"MAX_UPLOAD_MB"`

	SLABudget                 time.Duration `mapstructure:"SLA_BUDGET"`
	AssignmentWindow          time.Duration `mapstructure:"ASSIGNMENT_WINDOW"`
	AssignmentDurationMinutes int           `mapstructure:"ASSIGNMENT_DURATION_MINUTES"`
	RecurrenceWindow          time.Duration `mapstructure:"RECURRENCE_WINDOW"`
	CampusTimezone            string        `mapstructure:"CAMPUS_TIMEZONE"`
	CampusName                string        `mapstructure:"CAMPUS_NAME"`

	EscalationEnabled            bool          `mapstructure:"ESCALATION_ENABLED"`
	EscalationInterval           time.Duration `mapstructure:"ESCALATION_INTERVAL"`
	EscalationTickTimeout        time.Duration `mapstructure:"ESCALATION_TICK_TIMEOUT"`
	EscalationProcessPredictions bool          `mapstructure:"ESCALATION_PROCESS_PREDICTIONS"`
	CriticalDaysThreshold        float64       `mapstructure:"CRITICAL_DAYS_THRESHOLD"`

	PredictionURL   string `mapstructure:"PREDICTION_URL"`
	PredictionLimit int    `mapstructure:"PREDICTION_LIMIT"`

	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	TickLockKey   string        `mapstructure:"TICK_LOCK_KEY"`
	TickLockTTL   time.Duration `mapstructure:"TICK_LOCK_TTL"`

	KafkaBrokers           []string `mapstructure:"KAFKA_BROKERS"`
	KafkaNotificationTopic string   `mapstructure:"KAFKA_NOTIFICATION_TOPIC"`
	KafkaClientID          string   `mapstructure:"KAFKA_CLIENT_ID"`

	OTelEndpoint    string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool    `mapstructure:"OTEL_INSECURE"`
	OTelSampleRatio float64 `mapstructure:"OTEL_SAMPLE_RATIO"`

	GeocoderEnabled bool   `mapstructure:"GEOCODER_ENABLED"`
	GeocoderURL     string `mapstructure:"GEOCODER_URL"`
	GeocoderAgent   string `mapstructure:"GEOCODER_USER_AGENT"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)
	if cfg.EscalationTickTimeout <= 0 {
		cfg.EscalationTickTimeout = cfg.EscalationInterval
	}
	if cfg.TickLockTTL <= 0 {
		cfg.TickLockTTL = cfg.EscalationTickTimeout
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("MAX_UPLOAD_MB", 5)

	v.SetDefault("SLA_BUDGET", "15m")
	v.SetDefault("ASSIGNMENT_WINDOW", "15m")
	v.SetDefault("ASSIGNMENT_DURATION_MINUTES", 30)
	v.SetDefault("RECURRENCE_WINDOW", "168h")
	v.SetDefault("CAMPUS_TIMEZONE", "UTC")
	v.SetDefault("CAMPUS_NAME", "")

	v.SetDefault("ESCALATION_ENABLED", true)
	v.SetDefault("ESCALATION_INTERVAL", "2m")
	v.SetDefault("ESCALATION_TICK_TIMEOUT", "0s")
	v.SetDefault("ESCALATION_PROCESS_PREDICTIONS", true)
	v.SetDefault("CRITICAL_DAYS_THRESHOLD", 30)

	v.SetDefault("PREDICTION_URL", "")
	v.SetDefault("PREDICTION_LIMIT", 100)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("TICK_LOCK_KEY", "campusfix:escalation:tick")
	v.SetDefault("TICK_LOCK_TTL", "0s")

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_NOTIFICATION_TOPIC", "campusfix.notifications")
	v.SetDefault("KAFKA_CLIENT_ID", "campusfix-backend")

	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_INSECURE", true)
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	v.SetDefault("GEOCODER_ENABLED", false)
	v.SetDefault("GEOCODER_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("GEOCODER_USER_AGENT", "campusfix-backend")
}

// splitList flattens comma separated entries; viper hands env lists over as a
// single element.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Location resolves CAMPUS_TIMEZONE, falling back to UTC.
func (c Config) Location() *time.Location {
	if c.CampusTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.CampusTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
