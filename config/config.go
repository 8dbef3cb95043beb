/*
config.go - Immutable engine configuration

PURPOSE:
  Loads the EngineConfig value from env/file via viper, then hands
  an immutable snapshot to every component at startup. Hot-reload is not
  supported; a changed config requires a process restart.

PRECEDENCE: env (OVERTIME_ prefix) > config file > default. No setting is
  bound to a command-line flag; only the config file path is passed in.
*/
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// EngineConfig is threaded through every component at construction time;
// nothing reads it from a global afterward.
type EngineConfig struct {
	TimezoneName      string
	Location          *time.Location
	HTTPPort          int
	DBPath            string
	LogLevel          string
	VacationCarryoverCap float64 // 0 = uncapped; caps how many unused vacation days roll into the next year
	DefaultWeeklyHours float64
	RolloverCronSpec  string // robfig/cron spec, default "5 0 1 1 *" = Jan 1 00:05
}

func Load(configPath string) (EngineConfig, error) {
	v := viper.New()
	v.SetDefault("timezone", "Europe/Berlin")
	v.SetDefault("http_port", 8080)
	v.SetDefault("db_path", "overtime.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("vacation_carryover_cap", 0.0)
	v.SetDefault("default_weekly_hours", 40.0)
	v.SetDefault("rollover_cron_spec", "5 0 1 1 *")

	v.SetEnvPrefix("OVERTIME")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return EngineConfig{}, fmt.Errorf("reading config %s: %w", configPath, err)
		}
	}

	tzName := v.GetString("timezone")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("invalid timezone %q: %w", tzName, err)
	}

	return EngineConfig{
		TimezoneName:         tzName,
		Location:             loc,
		HTTPPort:             v.GetInt("http_port"),
		DBPath:               v.GetString("db_path"),
		LogLevel:             v.GetString("log_level"),
		VacationCarryoverCap: v.GetFloat64("vacation_carryover_cap"),
		DefaultWeeklyHours:   v.GetFloat64("default_weekly_hours"),
		RolloverCronSpec:     v.GetString("rollover_cron_spec"),
	}, nil
}
