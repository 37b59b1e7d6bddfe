// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string         `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string         `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string         `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	AdminEmails             AdminAllowlist `yaml:"admin_emails" env:"ADMIN_EMAILS"`
	HTTPServer              `yaml:"http_server"`
	RedisConnection         `yaml:"redis_connection"`
	JWTToken                `yaml:"jwttoken"`
	Billing                 `yaml:"billing"`
	RabbitMQ                `yaml:"rabbitmq"`
	SMTP                    `yaml:"smtp"`
	Scheduler               `yaml:"scheduler"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`

	// RedeemRPS ограничение частоты погашения ваучеров на один адрес.
	RedeemRPS   float64 `yaml:"redeem_rps" env-default:"1"`
	RedeemBurst int     `yaml:"redeem_burst" env-default:"5"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	Addr        string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	User        string        `yaml:"user"`
	DB          int           `yaml:"db"`
	MaxRetries  int           `yaml:"max_retries"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Timeout     time.Duration `yaml:"timeoutredis"`
}

// JWTToken параметры проверки токенов внешнего поставщика аутентификации.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	Issuer       string        `yaml:"issuer" env:"JWT_ISSUER"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"1h"`
}

// Billing настройки платёжной системы.
type Billing struct {
	WebhookSecret      string        `yaml:"webhook_secret" env:"BILLING_WEBHOOK_SECRET"`
	SignatureTolerance time.Duration `yaml:"signature_tolerance" env-default:"5m"`
	APIURL             string        `yaml:"api_url" env:"BILLING_API_URL"`
	APIKey             string        `yaml:"api_key" env:"BILLING_API_KEY"`
	APITimeout         time.Duration `yaml:"api_timeout" env-default:"5s"`

	// FallbackCooldown минимальный интервал между запросами к платёжной
	// системе для одного email.
	FallbackCooldown time.Duration `yaml:"fallback_cooldown" env-default:"1m"`
}

// RabbitMQ настройки брокера уведомлений.
type RabbitMQ struct {
	RabbitMQURL string        `yaml:"url" env:"RABBITMQ_URL"`
	Retries     int           `yaml:"retries" env-default:"5"`
	Delay       time.Duration `yaml:"delay" env-default:"2s"`
}

// SMTP настройки почтового сервера.
type SMTP struct {
	SMTPHost string `yaml:"host" env:"SMTP_HOST"`
	SMTPPort string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	SMTPUser string `yaml:"user" env:"SMTP_USER"`
	SMTPPass string `yaml:"pass" env:"SMTP_PASS"`
}

// Scheduler настройки напоминаний об окончании доступа.
type Scheduler struct {
	Interval       time.Duration `yaml:"interval" env-default:"1h"`
	ExpiringWindow time.Duration `yaml:"expiring_window" env-default:"72h"`
}

// AdminAllowlist список email администраторов. В переменной окружения
// задаётся через запятую.
type AdminAllowlist []string

// SetValue реализует cleanenv.Setter для значения из переменной окружения.
func (a *AdminAllowlist) SetValue(s string) error {
	var list AdminAllowlist
	for _, e := range strings.Split(s, ",") {
		if e = models.NormalizeEmail(e); e != "" {
			list = append(list, e)
		}
	}
	*a = list
	return nil
}

// Contains проверяет email без учёта регистра.
func (a AdminAllowlist) Contains(email string) bool {
	email = models.NormalizeEmail(email)
	if email == "" {
		return false
	}
	for _, e := range a {
		if models.NormalizeEmail(e) == email {
			return true
		}
	}
	return false
}

// MustLoad функция для загрузки конфига, возвращает конфиг, сгенерированный из config/config.go
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load читает конфиг из файла и переменных окружения.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// String печатает конфиг без секретов.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"MigrationsPath: %s\n"+
			"AdminEmails: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"Billing:\n"+
			"  APIURL: %s\n"+
			"  SignatureTolerance: %s\n"+
			"  FallbackCooldown: %s\n"+
			"Scheduler:\n"+
			"  Interval: %s\n"+
			"  ExpiringWindow: %s\n",
		c.Env,
		c.MigrationsPath,
		len(c.AdminEmails),
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.Addr,
		c.DB,
		c.APIURL,
		c.SignatureTolerance,
		c.FallbackCooldown,
		c.Interval,
		c.ExpiringWindow,
	)
}
