// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек гейткипера.
type Config struct {
	Env                     string `yaml:"env"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	RabbitConnectionString  string `yaml:"rabbit_connection_string"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Provisioner             `yaml:"provisioner"`
	Webhook                 `yaml:"webhook"`
	Locking                 `yaml:"locking"`
	Sweeper                 `yaml:"sweeper"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// JWTToken структура для работы с jwt-токеном.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// Provisioner описывает подключение к внешнему API создания рабочих
// пространств. Вызовы best-effort: локальное состояние первично.
type Provisioner struct {
	BaseURL        string        `yaml:"base_url"`
	APIUser        string        `yaml:"api_user"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

// Webhook описывает приём событий платёжного провайдера.
type Webhook struct {
	Secret          string        `yaml:"secret"`
	RetentionWindow time.Duration `yaml:"retention_window"`
}

// Locking описывает поведение пер-аккаунтной блокировки транзактора.
type Locking struct {
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	LockTTL        time.Duration `yaml:"lock_ttl"`
}

// Sweeper описывает периодичность фоновых проходов.
type Sweeper struct {
	ExpireInterval    time.Duration `yaml:"expire_interval"`
	RetentionInterval time.Duration `yaml:"retention_interval"`
	AuditRetention    time.Duration `yaml:"audit_retention"`
}

// MustLoad загружает конфиг по пути из CONFIG_PATH, при ошибке завершает процесс.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
