package main

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

type mirrorConfig struct {
	Enabled         bool   `env:"MIRROR"`
	Endpoint        string `env:"ENDPOINT"`
	Bucket          string `env:"BUCKET"`
	Region          string `env:"REGION" envDefault:"auto"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Prefix          string `env:"PREFIX"`
	PathStyle       bool   `env:"PATH_STYLE" envDefault:"true"`
	Workers         int    `env:"UPLOAD_WORKERS" envDefault:"2"`
	QueueCapacity   int    `env:"QUEUE_CAPACITY" envDefault:"2048"`
}

type indexConfig struct {
	Backend   string `env:"BACKEND" envDefault:"sqlite"`
	RemoteURL string `env:"REMOTE_URL"`
	Token     string `env:"REMOTE_TOKEN"`
	FlushMS   int    `env:"REMOTE_FLUSH_MS" envDefault:"500"`
	BatchSize int    `env:"REMOTE_BATCH_SIZE" envDefault:"128"`
}

// serverConfig is read from GK_* environment variables first; flags override.
type serverConfig struct {
	Addr        string `env:"GK_ADDR" envDefault:":8080"`
	ConfigDir   string `env:"GK_CONFIGS" envDefault:"./configs"`
	DataDir     string `env:"GK_DATA" envDefault:"./data"`
	TuningPath  string `env:"GK_TUNING"`
	ServerID    string `env:"GK_SERVER_ID" envDefault:"gemkitchen"`
	LogLevel    string `env:"GK_LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"GK_LOG_FORMAT" envDefault:"text"`
	EnableAdmin bool   `env:"GK_ENABLE_ADMIN_HTTP" envDefault:"true"`
	EnablePprof bool   `env:"GK_ENABLE_PPROF_HTTP"`

	Index  indexConfig  `envPrefix:"GK_INDEX_"`
	Mirror mirrorConfig `envPrefix:"GK_S3_"`
}

func loadConfig(args []string) (serverConfig, error) {
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	fs.StringVar(&cfg.ConfigDir, "configs", cfg.ConfigDir, "config directory")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "runtime data directory")
	fs.StringVar(&cfg.TuningPath, "tuning", cfg.TuningPath, "path to tuning.yaml (default: <configs>/tuning.yaml)")
	fs.StringVar(&cfg.ServerID, "server_id", cfg.ServerID, "server id reported to the remote index")
	fs.StringVar(&cfg.LogLevel, "log_level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log_format", cfg.LogFormat, "log format (text or json)")
	fs.StringVar(&cfg.Index.Backend, "index", cfg.Index.Backend, "index backend (sqlite, remote, none)")
	fs.BoolVar(&cfg.EnableAdmin, "admin", cfg.EnableAdmin, "serve loopback-only admin endpoints")
	fs.BoolVar(&cfg.EnablePprof, "pprof", cfg.EnablePprof, "serve /debug/pprof")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}
