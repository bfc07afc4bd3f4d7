package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV  = "CONFIG_FILE"
	brokerTokenENV     = "BROKER_API_TOKEN"
	primaryAccountENV  = "PRIMARY_ACCOUNT_ID"
	secondaryAccountEV = "SECONDARY_ACCOUNT_ID"
	tokenTelegramENV   = "TELEGRAM_TOKEN"
	databaseDSN        = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Broker struct {
		RestURL   string `yaml:"rest_url"`
		StreamURL string `yaml:"stream_url"`
		// секреты только из env/.env, в yaml их не держим
		Token            string `yaml:"-"`
		PrimaryAccount   string `yaml:"-"`
		SecondaryAccount string `yaml:"-"`
	} `yaml:"broker"`
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB     string `yaml:"db_dsn"`
	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`
	Health struct {
		Addr string `yaml:"addr"`
	} `yaml:"health"`

	// Дефолты риска на сессию
	// Сколько от депозита готовы потерять по СТОПУ
	DefaultRiskPct float64 `yaml:"risk_pct"` // например 1.0 => 1% equity
	// Дефолтная дистанция стопа в пипсах
	DefaultStopLossPips float64 `yaml:"stop_loss_pips"`
	// Тейк через RR: tp = entry ± RR*dist до SL
	TakeProfitRR float64 `yaml:"take_profit_rr"` // 1.0 => TP = 1R

	// Границы сайзинга
	MinUnits int `yaml:"min_units"`
	MaxUnits int `yaml:"max_units"` // потолок по марже брокера

	// Таймауты/ретраи
	GatewayTimeout  time.Duration // submit/cancel/modify, дальше — GatewayError
	FeedBackoffBase time.Duration // 1s, 2s, 4s ...
	FeedBackoffMax  time.Duration // ... cap 30s
	FeedPingHold    time.Duration // keepalive ping в стрим
	OrderPollEvery  time.Duration // поллинг статуса лимитки

	// Кеш последних тиков для команды status
	TickCacheSize int
}

func NewConfig() (*Config, error) {

	// .env рядом с бинарём — как в проде, так и локально; отсутствие не ошибка
	_ = godotenv.Load()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		DefaultRiskPct:      1.0,
		DefaultStopLossPips: 20,
		TakeProfitRR:        1.0,

		MinUnits: intFromEnv("MIN_UNITS", 1),
		MaxUnits: intFromEnv("MAX_UNITS", 10_000_000),

		GatewayTimeout:  durationFromEnv("GATEWAY_TIMEOUT", "10s"),
		FeedBackoffBase: durationFromEnv("FEED_BACKOFF_BASE", "1s"),
		FeedBackoffMax:  durationFromEnv("FEED_BACKOFF_MAX", "30s"),
		FeedPingHold:    durationFromEnv("FEED_PING_HOLD", "20s"),
		OrderPollEvery:  durationFromEnv("ORDER_POLL_EVERY", "1s"),

		TickCacheSize: intFromEnv("TICK_CACHE_SIZE", 30),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	config.Broker.Token = getenvRequired(brokerTokenENV)
	config.Broker.PrimaryAccount = getenvRequired(primaryAccountENV)
	config.Broker.SecondaryAccount = os.Getenv(secondaryAccountEV)

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	if config.Health.Addr == "" {
		config.Health.Addr = ":8080"
	}

	return &config, nil
}

func getenvRequired(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("env %s is required", key))
	}
	return v
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
