// Package config содержит логику чтения конфигурации сервиса столовой.
package config

import (
	"flag"
	"fmt"
	"math"

	"github.com/caarlos0/env/v11"

	"github.com/messops/mess-system/internal/pricing"
)

// Config содержит параметры конфигурации сервиса столовой.
// Месячные тарифы задаются в рупиях; ноль означает тариф по умолчанию.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS"`
	DatabaseURI      string `env:"DATABASE_URI"`
	AuthSecret       string `env:"AUTH_SECRET"`
	AdminCode        string `env:"ADMIN_CODE"`
	MailRelayAddress string `env:"MAIL_RELAY_ADDRESS"`

	MonthlyChargeMaleTwoTime   float64 `env:"MONTHLY_CHARGE_MALE_TWO_TIME"`
	MonthlyChargeFemaleTwoTime float64 `env:"MONTHLY_CHARGE_FEMALE_TWO_TIME"`
	MonthlyChargeMaleOneTime   float64 `env:"MONTHLY_CHARGE_MALE_ONE_TIME"`
	MonthlyChargeFemaleOneTime float64 `env:"MONTHLY_CHARGE_FEMALE_ONE_TIME"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envAuthSecret := cfg.AuthSecret
	envAdminCode := cfg.AdminCode
	envMailRelay := cfg.MailRelayAddress
	envMaleTwo := cfg.MonthlyChargeMaleTwoTime
	envFemaleTwo := cfg.MonthlyChargeFemaleTwoTime
	envMaleOne := cfg.MonthlyChargeMaleOneTime
	envFemaleOne := cfg.MonthlyChargeFemaleOneTime

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AuthSecret, "s", "mess-secret", "secret key for auth cookies")
	flag.StringVar(&cfg.AdminCode, "c", "", "admin code that allows owner registration")
	flag.StringVar(&cfg.MailRelayAddress, "m", "", "mail relay address for outbound notifications")
	flag.Float64Var(&cfg.MonthlyChargeMaleTwoTime, "price-male-two", 0, "monthly charge, male two-time plan")
	flag.Float64Var(&cfg.MonthlyChargeFemaleTwoTime, "price-female-two", 0, "monthly charge, female two-time plan")
	flag.Float64Var(&cfg.MonthlyChargeMaleOneTime, "price-male-one", 0, "monthly charge, male one-time plan")
	flag.Float64Var(&cfg.MonthlyChargeFemaleOneTime, "price-female-one", 0, "monthly charge, female one-time plan")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envAdminCode != "" {
		cfg.AdminCode = envAdminCode
	}
	if envMailRelay != "" {
		cfg.MailRelayAddress = envMailRelay
	}
	if envMaleTwo != 0 {
		cfg.MonthlyChargeMaleTwoTime = envMaleTwo
	}
	if envFemaleTwo != 0 {
		cfg.MonthlyChargeFemaleTwoTime = envFemaleTwo
	}
	if envMaleOne != 0 {
		cfg.MonthlyChargeMaleOneTime = envMaleOne
	}
	if envFemaleOne != 0 {
		cfg.MonthlyChargeFemaleOneTime = envFemaleOne
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}

// PricingTable строит тарифную таблицу с учётом переопределений конфигурации.
func (c *Config) PricingTable() pricing.Table {
	table := pricing.DefaultTable()

	if c.MonthlyChargeMaleTwoTime > 0 {
		table.MaleTwoTime = toPaise(c.MonthlyChargeMaleTwoTime)
	}
	if c.MonthlyChargeFemaleTwoTime > 0 {
		table.FemaleTwoTime = toPaise(c.MonthlyChargeFemaleTwoTime)
	}
	if c.MonthlyChargeMaleOneTime > 0 {
		table.MaleOneTime = toPaise(c.MonthlyChargeMaleOneTime)
	}
	if c.MonthlyChargeFemaleOneTime > 0 {
		table.FemaleOneTime = toPaise(c.MonthlyChargeFemaleOneTime)
	}

	return table
}

func toPaise(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}
