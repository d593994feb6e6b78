package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Bot      BotConfig      `mapstructure:"bot"`
	Roster   RosterConfig   `mapstructure:"roster"`
	Badge    BadgeConfig    `mapstructure:"badge"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID             string        `mapstructure:"app_id"`
	AppSecret         string        `mapstructure:"app_secret"`
	VerificationToken string        `mapstructure:"verification_token"`
	EncryptKey        string        `mapstructure:"encrypt_key"`
	BotOpenID         string        `mapstructure:"bot_open_id"`
	WebhookPath       string        `mapstructure:"webhook_path"`
	APITimeout        time.Duration `mapstructure:"api_timeout"`
}

// BotConfig holds command and workflow settings
type BotConfig struct {
	CommandPrefix      string        `mapstructure:"command_prefix"`
	ReviewChannelID    string        `mapstructure:"review_channel_id"`
	AdminCapability    string        `mapstructure:"admin_capability"`
	ApproverCapability string        `mapstructure:"approver_capability"`
	LeaveCapability    string        `mapstructure:"leave_capability"`
	RequestTTL         time.Duration `mapstructure:"request_ttl"`
	StickyIdle         time.Duration `mapstructure:"sticky_idle"`
	AgencyName         string        `mapstructure:"agency_name"`
}

// RosterConfig holds roster workbook settings
type RosterConfig struct {
	WorkbookPath  string `mapstructure:"workbook_path"`
	EmployeeSheet string `mapstructure:"employee_sheet"`
	MasterSheet   string `mapstructure:"master_sheet"`
}

// BadgeConfig holds badge generation settings
type BadgeConfig struct {
	RendererURL string `mapstructure:"renderer_url"`
	AgencyLine  string `mapstructure:"agency_line"`
	OutputDir   string `mapstructure:"output_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/warden.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Lark defaults
	viper.SetDefault("lark.webhook_path", "/webhook/events")
	viper.SetDefault("lark.api_timeout", 30*time.Second)

	// Bot defaults
	viper.SetDefault("bot.command_prefix", "n!")
	viper.SetDefault("bot.admin_capability", "admin")
	viper.SetDefault("bot.approver_capability", "approver")
	viper.SetDefault("bot.leave_capability", "on_leave")
	viper.SetDefault("bot.request_ttl", time.Hour)
	viper.SetDefault("bot.sticky_idle", 60*time.Second)
	viper.SetDefault("bot.agency_name", "National Intelligence")

	// Roster defaults
	viper.SetDefault("roster.workbook_path", "data/roster.xlsx")
	viper.SetDefault("roster.employee_sheet", "Employee Data")
	viper.SetDefault("roster.master_sheet", "Master Roster")

	// Badge defaults
	viper.SetDefault("badge.agency_line", "NATIONAL INTELLIGENCE")
	viper.SetDefault("badge.output_dir", "data/badges")

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("lark.app_id", "LARK_APP_ID")
	viper.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	viper.BindEnv("lark.verification_token", "LARK_VERIFICATION_TOKEN")
	viper.BindEnv("lark.encrypt_key", "LARK_ENCRYPT_KEY")
	viper.BindEnv("lark.bot_open_id", "LARK_BOT_OPEN_ID")
	viper.BindEnv("bot.review_channel_id", "REVIEW_CHANNEL_ID")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Lark.AppID == "" {
		return fmt.Errorf("lark.app_id is required")
	}
	if c.Lark.AppSecret == "" {
		return fmt.Errorf("lark.app_secret is required")
	}

	if c.Bot.ReviewChannelID == "" {
		return fmt.Errorf("bot.review_channel_id is required")
	}
	if c.Bot.CommandPrefix == "" {
		return fmt.Errorf("bot.command_prefix is required")
	}
	if c.Bot.RequestTTL <= 0 {
		return fmt.Errorf("bot.request_ttl must be positive")
	}

	if c.Roster.WorkbookPath == "" {
		return fmt.Errorf("roster.workbook_path is required")
	}

	return nil
}
