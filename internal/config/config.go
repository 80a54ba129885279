package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App struct {
		Port string `mapstructure:"port"`
		Env  string `mapstructure:"env"`
	} `mapstructure:"app"`
	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Kafka struct {
		Enabled bool     `mapstructure:"enabled"`
		Brokers []string `mapstructure:"brokers"`
	} `mapstructure:"kafka"`
	Scheduler struct {
		Enabled bool `mapstructure:"enabled"`
		// Cron-выражения четырех проходов
		BillingSpec     string `mapstructure:"billingSpec"`
		RetrySpec       string `mapstructure:"retrySpec"`
		LifecycleSpec   string `mapstructure:"lifecycleSpec"`
		OverpaymentSpec string `mapstructure:"overpaymentSpec"`
	} `mapstructure:"scheduler"`
	Processors struct {
		// Triggered включает триггерный процессор (стенды и тесты)
		Triggered bool `mapstructure:"triggered"`
	} `mapstructure:"processors"`
}

// LoadConfig загружает конфигурацию из файла или переменных окружения.
func LoadConfig(path string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		err := godotenv.Load(path)
		if err != nil {
			return nil, err
		}
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetDefault("app.port", "8080")
	viper.SetDefault("scheduler.billingSpec", "0 2 * * *")
	viper.SetDefault("scheduler.retrySpec", "30 2 * * *")
	viper.SetDefault("scheduler.lifecycleSpec", "0 3 * * *")
	viper.SetDefault("scheduler.overpaymentSpec", "30 3 * * *")

	viper.AutomaticEnv() // Чтение переменных окружения

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
