package commands

import (
	"fmt"
	"sheltercrawl/internal/components/chrono"
	"sheltercrawl/internal/session"
	"sheltercrawl/lib/configutil"
	configlibsql "sheltercrawl/lib/configutil/libsql"
	"sheltercrawl/lib/serviceutil"
	"time"
)

type Config struct {
	// UrlTemplate is the animal view report url without the identifier.
	UrlTemplate string              `json:"url_template"`
	Credentials session.Credentials `json:"credentials"`
	// Cookies replaces the default list of section cookies when set.
	Cookies      []string `json:"cookies"`
	CookieDomain string   `json:"cookie_domain"`
	CookiePath   string   `json:"cookie_path"`

	// Directory holds the downloaded report documents.
	Directory string `json:"directory"`
	// Input is the identifier list, one prefixed identifier per line.
	Input        string   `json:"input"`
	Concurrency  int      `json:"concurrency"`
	SkipExisting *bool    `json:"skip_existing"`
	Keywords     []string `json:"keywords"`

	FetchTimeout      string  `json:"fetch_timeout"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	CloudflareBypass  bool    `json:"cloudflare_bypass"`

	// Timezone is the IANA zone report timestamps are read in.
	Timezone  string              `json:"timezone"`
	Database  configlibsql.Struct `json:"database"`
	SpecFile  string              `json:"spec_file"`
	BatchSize int                 `json:"batch_size"`

	fetchTimeout time.Duration
}

var defaultConfig = Config{
	Cookies:      session.DefaultCookies,
	Directory:    "reports",
	Input:        "animals.txt",
	FetchTimeout: "60s",
	Timezone:     "America/Chicago",
	Database:     configlibsql.Struct{File: "records.db"},
	BatchSize:    100,
}

func readConfig(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err = configutil.WithDefaults(cfg, defaultConfig)
	if err != nil {
		return Config{}, err
	}
	// mergo cannot tell an explicit false from a missing value
	if cfg.SkipExisting == nil {
		skip := true
		cfg.SkipExisting = &skip
	}

	cfg.Directory = configutil.ResolvePath(path, cfg.Directory)
	cfg.Input = configutil.ResolvePath(path, cfg.Input)
	cfg.SpecFile = configutil.ResolvePath(path, cfg.SpecFile)
	if cfg.Database.File != configlibsql.Memory {
		cfg.Database.File = configutil.ResolvePath(path, cfg.Database.File)
	}

	cfg.fetchTimeout, err = time.ParseDuration(cfg.FetchTimeout)
	if err != nil {
		return Config{}, fmt.Errorf("fetch_timeout: %w", err)
	}
	if cfg.Concurrency < 0 {
		return Config{}, fmt.Errorf("concurrency must not be negative, got %d", cfg.Concurrency)
	}
	return cfg, nil
}

func mustReadConfig() (Config, chrono.StandardImpl) {
	cfg, err := readConfig(*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		serviceutil.Fatal("failed to load timezone", err)
	}
	return cfg, clock
}
