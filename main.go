package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	log "go-liveness-verifier/logging"
	redis "go-liveness-verifier/redis"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-liveness-verifier/challenge"
	"go-liveness-verifier/verification"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerConfig ServerConfig `json:"server_config"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	VerificationConfig verification.Config `json:"verification_config"`
	AuditServiceUrl    string              `json:"audit_service_url,omitempty"`

	StorageType         string                    `json:"storage_type"`
	RedisConfig         redis.RedisConfig         `json:"redis_config,omitempty"`
	RedisSentinelConfig redis.RedisSentinelConfig `json:"redis_sentinel_config,omitempty"`
}

func main() {
	configPath := flag.String("config", "", "Path for the config.json to use")
	envPath := flag.String("env", ".env", "Optional .env file with LIVENESS_* overrides")
	flag.Parse()

	if *configPath == "" {
		log.Error.Fatal("please provide a config path using the --config flag")
	}

	if err := loadEnvFile(*envPath); err != nil {
		log.Error.Fatalf("failed to load env file: %v", err)
	}

	config, err := readConfigFile(*configPath)
	if err != nil {
		log.Error.Fatalf("failed to read config file: %v", err)
	}
	applyEnvOverrides(&config)

	log.InitLoggerWithFormat(config.LogLevel, config.LogFormat)
	log.Info.Printf("using config: %v", *configPath)
	log.Info.Printf("hosting on: %v:%v", config.ServerConfig.Host, config.ServerConfig.Port)

	source := challenge.NewLockedSource(time.Now().UnixNano())
	engine, err := verification.NewEngine(config.VerificationConfig, source)
	if err != nil {
		log.Error.Fatalf("failed to instantiate verification engine: %v", err)
	}

	sessionStorage, err := createSessionStorage(&config)
	if err != nil {
		log.Error.Fatalf("failed to instantiate session storage: %v", err)
	}

	auditClient := createAuditClient(config.AuditServiceUrl)
	if auditClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := auditClient.HealthCheck(ctx); err != nil {
			log.Info.Printf("audit service not reachable yet, verdicts will still be served: %v", err)
		}
		cancel()
	}

	serverState := ServerState{
		generator:      challenge.NewGenerator(challenge.WithSource(source)),
		engine:         engine,
		sessionStorage: sessionStorage,
		auditClient:    auditClient,
		now:            time.Now,
	}

	server, err := NewServer(&serverState, config.ServerConfig)
	if err != nil {
		log.Error.Fatalf("failed to create server: %v", err)
	}

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		<-signals
		_ = server.Stop()
	}()

	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error.Fatalf("failed to listen and serve: %v", err)
	}
}

// readConfigFile starts from the default thresholds so a config file only
// needs to name the ones it tunes.
func readConfigFile(path string) (Config, error) {
	configBytes, err := os.ReadFile(path)

	if err != nil {
		return Config{}, err
	}

	config := Config{
		LogLevel:           "info",
		LogFormat:          "text",
		StorageType:        "memory",
		VerificationConfig: verification.DefaultConfig(),
	}
	err = json.Unmarshal(configBytes, &config)

	if err != nil {
		return Config{}, err
	}

	return config, nil
}

// loadEnvFile loads path into the process environment; a missing file is fine.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func applyEnvOverrides(config *Config) {
	if level, ok := os.LookupEnv("LIVENESS_LOG_LEVEL"); ok {
		config.LogLevel = level
	}
	if storage, ok := os.LookupEnv("LIVENESS_STORAGE_TYPE"); ok {
		config.StorageType = storage
	}
	if password, ok := os.LookupEnv("LIVENESS_REDIS_PASSWORD"); ok {
		config.RedisConfig.Password = password
		config.RedisSentinelConfig.Password = password
	}
	if auditUrl, ok := os.LookupEnv("LIVENESS_AUDIT_SERVICE_URL"); ok {
		config.AuditServiceUrl = auditUrl
	}
}

func createSessionStorage(config *Config) (SessionStorage, error) {
	if config.StorageType == "redis" {
		log.Info.Printf("Using redis session storage")
		client, err := redis.NewRedisClient(&config.RedisConfig)
		if err != nil {
			return nil, err
		}
		return NewRedisSessionStorage(client, config.RedisConfig.Namespace), nil
	}
	if config.StorageType == "redis_sentinel" {
		log.Info.Printf("Using redis sentinel storage")
		client, err := redis.NewRedisSentinelClient(&config.RedisSentinelConfig)
		if err != nil {
			return nil, err
		}
		return NewRedisSessionStorage(client, config.RedisSentinelConfig.Namespace), nil
	}
	if config.StorageType == "memory" {
		log.Info.Printf("Using in memory storage")
		return NewInMemorySessionStorage(), nil
	}
	return nil, fmt.Errorf("%v is not a valid storage type", config.StorageType)
}

func createAuditClient(url string) AuditClient {
	if url == "" {
		log.Info.Printf("No audit service configured")
		return nil
	}
	log.Info.Printf("Forwarding verification results to audit service at %v", url)
	return NewHttpAuditClient(url)
}
