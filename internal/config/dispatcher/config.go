package dispatcher_config

import (
	"time"

	"github.com/calmora/remindq/internal/obs"
	pginfra "github.com/calmora/remindq/internal/repository/postgres"
)

type DispatchCfg struct {
	Tick       time.Duration `mapstructure:"tick"`
	BatchLimit int           `mapstructure:"batch_limit"`
	Ceiling    int           `mapstructure:"ceiling"`
	OpsAddr    string        `mapstructure:"ops_addr"`
}

type Telegram struct {
	BotToken string `mapstructure:"bot_token"`
	APIBase  string `mapstructure:"api_base"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	App    string `mapstructure:"app"`
	Env    string `mapstructure:"env"`
	Ver    string `mapstructure:"ver"`
}

func (l Log) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{Level: l.Level, Pretty: l.Pretty, App: l.App, Env: l.Env, Ver: l.Ver}
}

type OTEL struct {
	Enable      bool    `mapstructure:"enable"`
	Endpoint    string  `mapstructure:"otlp_endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func (o OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{Enable: o.Enable, Endpoint: o.Endpoint, ServiceName: o.ServiceName, SampleRatio: o.SampleRatio}
}

type Config struct {
	DB       pginfra.Config `mapstructure:"db"`
	Dispatch DispatchCfg    `mapstructure:"dispatch"`
	Telegram Telegram       `mapstructure:"telegram"`
	Log      Log            `mapstructure:"log"`
	OTEL     OTEL           `mapstructure:"otel"`
}
