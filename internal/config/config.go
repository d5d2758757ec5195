package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ServerMonitorAPI/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	MQTT          MQTTConfig
	Redis         RedisConfig
	Security      SecurityConfig
	Logging       LoggingConfig
	SMTP          SMTPConfig
	Alerting      AlertingConfig
	Notifications NotificationConfig
	Queue         QueueConfig
	EventBus      EventBusConfig
	Resilience    ResilienceConfig
	PlatformPath  string
}

type ServerConfig struct {
	Host            string
	Port            int
	Environment     string
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxHeaderBytes  int
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	AutoMigrate     bool
}

type MQTTConfig struct {
	Broker         string
	Port           int
	ClientID       string
	Username       string
	Password       string
	TelemetryTopic string
	QoS            byte
	RetainMessages bool
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	AutoReconnect  bool
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type SecurityConfig struct {
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	RateLimitPerMinute int
	EnableRateLimit    bool
}

type LoggingConfig struct {
	Level      logger.Level
	Mode       logger.Mode
	FilePath   string
	UseColors  bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	DialTimeout time.Duration
}

type AlertingConfig struct {
	EvaluationSchedule string
	Lookback           time.Duration
}

type NotificationConfig struct {
	RetrySweepSchedule string
	RetryAge           time.Duration
	CleanupSchedule    string
	Retention          time.Duration
	MaxRetries         int
	WebhookTimeout     time.Duration
}

type QueueConfig struct {
	Name          string
	Concurrency   int
	Attempts      int
	InitialDelay  time.Duration
	DeadLetterCap int64
	StaleAfter    time.Duration
}

type EventBusConfig struct {
	Mode        string
	TopicPrefix string
	Source      string
}

type ResilienceConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HealthSchedule   string
}

var requiredEnvVars = []string{
	"DB_HOST",
	"DB_PORT",
	"DB_USER",
	"DB_PASSWORD",
	"DB_NAME",
	"MQTT_BROKER",
	"MQTT_PORT",
	"REDIS_ADDR",
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	if err := validateRequired(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		MQTT:          loadMQTTConfig(),
		Redis:         loadRedisConfig(),
		Security:      loadSecurityConfig(),
		Logging:       loadLoggingConfig(),
		SMTP:          loadSMTPConfig(),
		Alerting:      loadAlertingConfig(),
		Notifications: loadNotificationConfig(),
		Queue:         loadQueueConfig(),
		EventBus:      loadEventBusConfig(),
		Resilience:    loadResilienceConfig(),
		PlatformPath:  getEnv("PLATFORM_CONFIG", "platform.yaml"),
	}

	return cfg, nil
}

func validateRequired() error {
	var missing []string

	for _, key := range requiredEnvVars {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SERVER_HOST", "0.0.0.0"),
		Port:            getEnvAsInt("SERVER_PORT", 8080),
		Environment:     getEnv("ENVIRONMENT", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", "15s"),
		ReadTimeout:     getEnvAsDuration("READ_TIMEOUT", "10s"),
		WriteTimeout:    getEnvAsDuration("WRITE_TIMEOUT", "10s"),
		MaxHeaderBytes:  getEnvAsInt("MAX_HEADER_BYTES", 1048576),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "monitor"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "server_monitor"),
		SSLMode:         getEnv("DB_SSL_MODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", "5m"),
		ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", "5m"),
		AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", true),
	}
}

func loadMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:         getEnv("MQTT_BROKER", "localhost"),
		Port:           getEnvAsInt("MQTT_PORT", 1883),
		ClientID:       getEnv("MQTT_CLIENT_ID", "server-monitor-api"),
		Username:       getEnv("MQTT_USERNAME", ""),
		Password:       getEnv("MQTT_PASSWORD", ""),
		TelemetryTopic: getEnv("MQTT_TELEMETRY_TOPIC", "monitor/metrics"),
		QoS:            byte(getEnvAsInt("MQTT_QOS", 1)),
		RetainMessages: getEnvAsBool("MQTT_RETAIN", false),
		KeepAlive:      getEnvAsDuration("MQTT_KEEP_ALIVE", "60s"),
		ConnectTimeout: getEnvAsDuration("MQTT_CONNECT_TIMEOUT", "10s"),
		AutoReconnect:  getEnvAsBool("MQTT_AUTO_RECONNECT", true),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
		Password:     getEnv("REDIS_PASSWORD", ""),
		DB:           getEnvAsInt("REDIS_DB", 0),
		PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
		DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", "5s"),
		ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", "3s"),
		WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", "3s"),
	}
}

func loadSecurityConfig() SecurityConfig {
	origins := getEnv("CORS_ALLOWED_ORIGINS", "*")
	methods := getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS")

	return SecurityConfig{
		CORSAllowedOrigins: strings.Split(origins, ","),
		CORSAllowedMethods: strings.Split(methods, ","),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 100),
		EnableRateLimit:    getEnvAsBool("ENABLE_RATE_LIMIT", true),
	}
}

func loadLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      logger.ParseLevel(getEnv("LOG_LEVEL", "info")),
		Mode:       logger.ParseMode(getEnv("LOG_MODE", "normal")),
		FilePath:   getEnv("LOG_FILE_PATH", ""),
		UseColors:  getEnvAsBool("LOG_USE_COLORS", true),
		MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
		MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
		MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 30),
		Compress:   getEnvAsBool("LOG_COMPRESS", true),
	}
}

func loadSMTPConfig() SMTPConfig {
	return SMTPConfig{
		Host:        getEnv("SMTP_HOST", "localhost"),
		Port:        getEnvAsInt("SMTP_PORT", 587),
		Username:    getEnv("SMTP_USERNAME", ""),
		Password:    getEnv("SMTP_PASSWORD", ""),
		From:        getEnv("SMTP_FROM", "alerts@server-monitor.local"),
		DialTimeout: getEnvAsDuration("SMTP_DIAL_TIMEOUT", "10s"),
	}
}

func loadAlertingConfig() AlertingConfig {
	return AlertingConfig{
		EvaluationSchedule: getEnv("ALERT_EVALUATION_SCHEDULE", "@every 30s"),
		Lookback:           getEnvAsDuration("ALERT_LOOKBACK", "5m"),
	}
}

func loadNotificationConfig() NotificationConfig {
	return NotificationConfig{
		RetrySweepSchedule: getEnv("NOTIFY_RETRY_SWEEP", "@every 15m"),
		RetryAge:           getEnvAsDuration("NOTIFY_RETRY_AGE", "15m"),
		CleanupSchedule:    getEnv("NOTIFY_CLEANUP", "0 3 * * *"),
		Retention:          getEnvAsDuration("NOTIFY_RETENTION", "720h"),
		MaxRetries:         getEnvAsInt("NOTIFY_MAX_RETRIES", 3),
		WebhookTimeout:     getEnvAsDuration("WEBHOOK_TIMEOUT", "10s"),
	}
}

func loadQueueConfig() QueueConfig {
	return QueueConfig{
		Name:          getEnv("QUEUE_NAME", "notifications"),
		Concurrency:   getEnvAsInt("QUEUE_CONCURRENCY", 5),
		Attempts:      getEnvAsInt("QUEUE_ATTEMPTS", 3),
		InitialDelay:  getEnvAsDuration("QUEUE_BACKOFF", "2s"),
		DeadLetterCap: int64(getEnvAsInt("QUEUE_DEAD_LETTER_CAP", 1000)),
		StaleAfter:    getEnvAsDuration("QUEUE_STALE_AFTER", "30s"),
	}
}

func loadEventBusConfig() EventBusConfig {
	return EventBusConfig{
		Mode:        getEnv("EVENT_BUS_MODE", "local"),
		TopicPrefix: getEnv("EVENT_TOPIC_PREFIX", "monitor/events"),
		Source:      getEnv("EVENT_SOURCE", "alert-service"),
	}
}

func loadResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		FailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
		ResetTimeout:     getEnvAsDuration("BREAKER_RESET_TIMEOUT", "60s"),
		HealthSchedule:   getEnv("SERVICE_HEALTH_INTERVAL", "@every 30s"),
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

func (c *Config) GetMQTTBroker() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTT.Broker, c.MQTT.Port)
}

func (c *Config) Validate() error {
	var errors []string

	if c.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD cannot be empty")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}

	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errors = append(errors, "MQTT_PORT must be between 1 and 65535")
	}

	if c.Queue.Concurrency < 1 {
		errors = append(errors, "QUEUE_CONCURRENCY must be at least 1")
	}

	if c.Queue.Attempts < 1 {
		errors = append(errors, "QUEUE_ATTEMPTS must be at least 1")
	}

	if c.Notifications.MaxRetries < 0 {
		errors = append(errors, "NOTIFY_MAX_RETRIES cannot be negative")
	}

	if c.Resilience.FailureThreshold < 1 {
		errors = append(errors, "BREAKER_FAILURE_THRESHOLD must be at least 1")
	}

	if c.EventBus.Mode != "local" && c.EventBus.Mode != "mqtt" {
		errors = append(errors, "EVENT_BUS_MODE must be local or mqtt")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func (c *Config) Print() {
	fmt.Println("╔══════════════════════════════════════════════════════════╗")
	fmt.Println("║           Server Monitor - Configuration                ║")
	fmt.Println("╚══════════════════════════════════════════════════════════╝")
	fmt.Printf("Environment:     %s\n", c.Server.Environment)
	fmt.Printf("Server:          %s:%d\n", c.Server.Host, c.Server.Port)
	fmt.Printf("Database:        %s:%d/%s\n", c.Database.Host, c.Database.Port, c.Database.Database)
	fmt.Printf("MQTT Broker:     %s:%d\n", c.MQTT.Broker, c.MQTT.Port)
	fmt.Printf("Redis:           %s/%d\n", c.Redis.Addr, c.Redis.DB)
	fmt.Printf("Event Bus:       %s (%s)\n", c.EventBus.Mode, c.EventBus.TopicPrefix)
	fmt.Printf("Queue:           %s x%d workers\n", c.Queue.Name, c.Queue.Concurrency)
	fmt.Printf("Platform File:   %s\n", c.PlatformPath)
	fmt.Println("──────────────────────────────────────────────────────────")
}
