package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gopkg.in/yaml.v2"

	"github.com/piggyclaim/piggyclaim/core/retry"
	"github.com/piggyclaim/piggyclaim/model"
	"github.com/piggyclaim/piggyclaim/pkg/logger"
	"github.com/piggyclaim/piggyclaim/pkg/timekeeper"
)

const (
	DefaultRPCURL       = "https://mainnet.base.org"
	DefaultExplorerURL  = "https://basescan.org"
	DefaultSuperformAPI = "https://www.superform.xyz/api/proxy/token-distribution"

	DefaultRetries             = 3
	DefaultPauseBetweenRetries = 5.0
	DefaultRetryBackoff        = 1.5
	DefaultMaxWaitTime         = 180.0

	envPrefix = "PIGGY_"
)

var (
	DefaultPauseBetweenWallets = timekeeper.Between(10, 20)
	DefaultPauseBetweenModules = timekeeper.Between(5, 10)
	DefaultTasks               = []string{string(model.TaskClaim)}
)

// RetryConfig bounds the retried network calls.
type RetryConfig struct {
	Retries int           `validate:"gte=0"`
	Delay   time.Duration `validate:"gte=0"`
	Backoff float64       `validate:"gte=1"`
}

// Config contains everything a run needs, already defaulted and validated.
type Config struct {
	Logger logger.Logger `json:"-"`

	PauseBetweenWallets timekeeper.Delay
	PauseBetweenModules timekeeper.Delay
	Retry               RetryConfig
	MaxWaitTime         time.Duration `validate:"gt=0"`

	MobileProxy bool
	RotateIP    bool

	RPCURL       string `validate:"required,url"`
	ExplorerURL  string `validate:"omitempty,url"`
	SuperformAPI string `validate:"required,url"`

	Tasks          []model.TaskName `validate:"min=1"`
	ShuffleWallets bool
	DynamicFee     bool

	DbPath          string `validate:"required"`
	PrivateKeysPath string `validate:"required"`
	ProxiesPath     string
	ReportPath      string        `validate:"required"`
	BackupDir       string        `validate:"required"`
	BackupInterval  time.Duration `validate:"gte=0"`

	TelegramBotToken string `json:"-"`
	TelegramUserID   string

	MetricsAddress   string `validate:"omitempty,hostname_port"`
	Schedule         string
	CheckConcurrency int `validate:"gte=0"`
	Production       bool
}

// These are read from configPath
type ConfigRaw struct {
	PauseBetweenWallets *timekeeper.Delay `yaml:"pause_between_wallets"`
	PauseBetweenModules *timekeeper.Delay `yaml:"pause_between_modules"`
	Retries             *int              `yaml:"retries"`
	PauseBetweenRetries *float64          `yaml:"pause_between_retries"`
	RetryBackoff        *float64          `yaml:"retry_backoff"`
	MaxWaitTime         *float64          `yaml:"max_wait_time"`

	MobileProxy bool `yaml:"mobile_proxy"`
	RotateIP    bool `yaml:"rotate_ip"`

	RpcUrl       string `yaml:"rpc_url"`
	ExplorerUrl  string `yaml:"explorer_url"`
	SuperformAPI string `yaml:"superform_api"`

	Tasks          []string `yaml:"tasks"`
	ShuffleWallets bool     `yaml:"shuffle_wallets"`
	DynamicFee     bool     `yaml:"dynamic_fee"`

	DbPath          string  `yaml:"db_path"`
	PrivateKeysPath string  `yaml:"private_keys_path"`
	ProxiesPath     string  `yaml:"proxies_path"`
	ReportPath      string  `yaml:"report_path"`
	BackupDir       string  `yaml:"backup_dir"`
	BackupInterval  float64 `yaml:"backup_interval"`

	TgBotToken string `yaml:"tg_bot_token"`
	TgUserID   string `yaml:"tg_user_id"`

	MetricsAddress   string `yaml:"metrics_address"`
	Schedule         string `yaml:"schedule"`
	CheckConcurrency int    `yaml:"check_concurrency"`
	Production       bool   `yaml:"production"`
}

// NewConfig loads .env, reads the yaml file at configFilePath (optional),
// applies PIGGY_* environment overrides and validates the result.
func NewConfig(configFilePath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cannot load .env: %w", err)
	}

	var raw ConfigRaw
	if configFilePath != "" {
		b, err := os.ReadFile(configFilePath)
		if err != nil {
			return nil, fmt.Errorf("cannot read config %s: %w", configFilePath, err)
		}
		if err := yaml.UnmarshalStrict(b, &raw); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", configFilePath, err)
		}
	}

	applyEnv(&raw)

	config, err := FromRaw(&raw)
	if err != nil {
		return nil, err
	}

	config.Logger, err = logger.New(config.Production)
	if err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(raw *ConfigRaw) {
	overrides := map[string]*string{
		"TG_BOT_TOKEN":      &raw.TgBotToken,
		"TG_USER_ID":        &raw.TgUserID,
		"RPC_URL":           &raw.RpcUrl,
		"DB_PATH":           &raw.DbPath,
		"PRIVATE_KEYS_PATH": &raw.PrivateKeysPath,
		"PROXIES_PATH":      &raw.ProxiesPath,
	}

	for name, field := range overrides {
		if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
			*field = v
		}
	}
}

func orDefault[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// FromRaw fills defaults and validates.
func FromRaw(raw *ConfigRaw) (*Config, error) {
	tasks := raw.Tasks
	if len(tasks) == 0 {
		tasks = DefaultTasks
	}

	parsed := make([]model.TaskName, 0, len(tasks))
	for _, name := range tasks {
		task, err := model.ParseTaskName(name)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, task)
	}

	config := &Config{
		PauseBetweenWallets: orDefault(raw.PauseBetweenWallets, DefaultPauseBetweenWallets),
		PauseBetweenModules: orDefault(raw.PauseBetweenModules, DefaultPauseBetweenModules),
		Retry: RetryConfig{
			Retries: orDefault(raw.Retries, DefaultRetries),
			Delay:   seconds(orDefault(raw.PauseBetweenRetries, DefaultPauseBetweenRetries)),
			Backoff: orDefault(raw.RetryBackoff, DefaultRetryBackoff),
		},
		MaxWaitTime: seconds(orDefault(raw.MaxWaitTime, DefaultMaxWaitTime)),

		MobileProxy: raw.MobileProxy,
		RotateIP:    raw.RotateIP,

		RPCURL:       lo.Ternary(raw.RpcUrl != "", raw.RpcUrl, DefaultRPCURL),
		ExplorerURL:  lo.Ternary(raw.ExplorerUrl != "", raw.ExplorerUrl, DefaultExplorerURL),
		SuperformAPI: lo.Ternary(raw.SuperformAPI != "", raw.SuperformAPI, DefaultSuperformAPI),

		Tasks:          lo.Uniq(parsed),
		ShuffleWallets: raw.ShuffleWallets,
		DynamicFee:     raw.DynamicFee,

		DbPath:          lo.Ternary(raw.DbPath != "", raw.DbPath, "data/piggy.db"),
		PrivateKeysPath: lo.Ternary(raw.PrivateKeysPath != "", raw.PrivateKeysPath, "data/private_keys.txt"),
		ProxiesPath:     lo.Ternary(raw.ProxiesPath != "", raw.ProxiesPath, "data/proxies.txt"),
		ReportPath:      lo.Ternary(raw.ReportPath != "", raw.ReportPath, "piggy_data.xlsx"),
		BackupDir:       lo.Ternary(raw.BackupDir != "", raw.BackupDir, "data/backups"),
		BackupInterval:  seconds(raw.BackupInterval),

		TelegramBotToken: strings.TrimSpace(raw.TgBotToken),
		TelegramUserID:   strings.TrimSpace(raw.TgUserID),

		MetricsAddress:   raw.MetricsAddress,
		Schedule:         strings.TrimSpace(raw.Schedule),
		CheckConcurrency: raw.CheckConcurrency,
		Production:       raw.Production,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
				return fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag())
			})
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	if err := c.PauseBetweenWallets.Validate(); err != nil {
		return fmt.Errorf("pause_between_wallets: %w", err)
	}
	if err := c.PauseBetweenModules.Validate(); err != nil {
		return fmt.Errorf("pause_between_modules: %w", err)
	}
	return nil
}

// RetryPolicy builds the policy shared by every retried call.
func (c *Config) RetryPolicy(log logger.Logger, clock timekeeper.Clock, onRetry func(name string, attempt int, err error)) retry.Policy {
	return retry.Policy{
		Retries: c.Retry.Retries,
		Delay:   c.Retry.Delay,
		Backoff: c.Retry.Backoff,
		Logger:  log,
		Clock:   clock,
		OnRetry: onRetry,
	}
}

// TelegramEnabled reports whether both bot token and user id are set.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramUserID != ""
}
