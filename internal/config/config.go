// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек процесса.
// Все зависимости передаются в конструкторы явно, глобального состояния нет.
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitConnection        `yaml:"rabbit_connection"`
	HTTPServer              `yaml:"http_server"`
	Telegram                `yaml:"telegram"`
	SubscriptionPlan        `yaml:"subscription_plan"`
	Proxy                   `yaml:"proxy"`
	JWTToken                `yaml:"jwttoken"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user" env:"REDIS_USER"`
	DB           int           `yaml:"db" env:"REDIS_DB"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// RabbitConnection структура для настройки подключения к rabbitmq
type RabbitConnection struct {
	AddressRabbit string        `yaml:"addressrabbit" env:"RABBIT_ADDRESS"`
	RetriesRabbit int           `yaml:"retries" env-default:"5"`
	DelayRabbit   time.Duration `yaml:"delay" env-default:"2s"`
}

// HTTPServer структура для настройки внутреннего админского HTTP-сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:"localhost:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"5s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// Telegram структура с параметрами бота и платежного провайдера.
// AdminIDs — телеграм-идентификаторы операторов, которым доступны
// административные команды.
type Telegram struct {
	BotToken             string  `yaml:"bot_token" env:"BOT_TOKEN"`
	PaymentProviderToken string  `yaml:"payment_provider_token" env:"PAYMENT_PROVIDER_TOKEN"`
	AdminIDs             []int64 `yaml:"admin_ids" env:"ADMIN_IDS"`
}

// SubscriptionPlan описывает продаваемый период доступа.
// PriceMinorUnits задается в минимальных единицах валюты (копейки, центы).
type SubscriptionPlan struct {
	PriceMinorUnits int64         `yaml:"price_minor_units" env-default:"50000"`
	Currency        string        `yaml:"currency" env-default:"RUB"`
	Duration        time.Duration `yaml:"duration" env-default:"720h"`
	TrialDuration   time.Duration `yaml:"trial_duration" env-default:"24h"`
}

// Proxy содержит параметры прокси-контура: стартовый список серверов
// для посева каталога и адрес метрик mtg-демона.
type Proxy struct {
	DefaultServers []string `yaml:"default_servers"`
	MTGMetricsURL  string   `yaml:"mtg_metrics_url" env:"MTG_METRICS_URL"`
}

// JWTToken структура для работы с jwt-токеном админского API
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// MustLoad функция для загрузки конфига, путь к файлу берется из CONFIG_PATH
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
