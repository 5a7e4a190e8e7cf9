package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Logging       LoggingConfig       `json:"logging"`
	Settlement    SettlementConfig    `json:"settlement"`
	Solana        SolanaConfig        `json:"solana"`
	Identity      IdentityConfig      `json:"identity"`
	Auth          AuthConfig          `json:"auth"`
	Notifications NotificationsConfig `json:"notifications"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Mode           string   `json:"mode"`
	ReadTimeout    Duration `json:"read_timeout"`
	WriteTimeout   Duration `json:"write_timeout"`
	IdleTimeout    Duration `json:"idle_timeout"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// DatabaseConfig represents database configuration. Driver "memory" keeps
// the profile read model in process.
type DatabaseConfig struct {
	Driver         string   `json:"driver"`
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	User           string   `json:"user"`
	Password       string   `json:"password"`
	DBName         string   `json:"db_name"`
	SSLMode        string   `json:"ssl_mode"`
	MaxConnections int      `json:"max_connections"`
	MaxIdleConns   int      `json:"max_idle_conns"`
	MaxLifetime    Duration `json:"max_lifetime"`
}

// LoggingConfig selects the zap preset and level
type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// SettlementConfig holds the constants of the sale path
type SettlementConfig struct {
	FeeRateNumerator   uint64   `json:"fee_rate_numerator"`
	FeeRateDenominator uint64   `json:"fee_rate_denominator"`
	Decimals           int32    `json:"decimals"`
	TokenMint          string   `json:"token_mint"`
	TokenSymbol        string   `json:"token_symbol"`
	Treasury           string   `json:"treasury"`
	FeePayer           string   `json:"fee_payer"`
	QueryTimeout       Duration `json:"query_timeout"`
	SubmitTimeout      Duration `json:"submit_timeout"`
	ExplorerURL        string   `json:"explorer_url"`
}

// SolanaConfig configures chain access. An empty RPCURL selects the
// in-memory ledger.
type SolanaConfig struct {
	RPCURL        string   `json:"rpc_url"`
	PlatformKey   string   `json:"platform_key"`
	CustodialKeys []string `json:"custodial_keys"`
	Commitment    string   `json:"commitment"`
	PollInterval  Duration `json:"poll_interval"`
}

// IdentityConfig configures the verification handshake
type IdentityConfig struct {
	ChallengeTTL   Duration `json:"challenge_ttl"`
	VerifyTimeout  Duration `json:"verify_timeout"`
	SweepSchedule  string   `json:"sweep_schedule"`
	OEmbedEndpoint string   `json:"oembed_endpoint"`
}

// AuthConfig configures wallet sessions
type AuthConfig struct {
	JWTSecret    string   `json:"jwt_secret"`
	Issuer       string   `json:"issuer"`
	SessionTTL   Duration `json:"session_ttl"`
	ChallengeTTL Duration `json:"challenge_ttl"`
}

// NotificationsConfig configures the SES and SNS channels. Leaving EmailFrom
// empty disables email; SMS is opt-in.
type NotificationsConfig struct {
	Region          string   `json:"region"`
	AccessKeyID     string   `json:"access_key_id"`
	SecretAccessKey string   `json:"secret_access_key"`
	EmailFrom       string   `json:"email_from"`
	SMSEnabled      bool     `json:"sms_enabled"`
	SMSSenderID     string   `json:"sms_sender_id"`
	SendTimeout     Duration `json:"send_timeout"`
}

// Duration is a time.Duration written as "5s" in JSON
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid duration %s", data)
		}
		*d = Duration(n)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			Mode:         "debug",
			ReadTimeout:  Duration(15 * time.Second),
			WriteTimeout: Duration(45 * time.Second),
			IdleTimeout:  Duration(60 * time.Second),
		},
		Database: DatabaseConfig{
			Driver:         "memory",
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "capital_creator",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    Duration(time.Hour),
		},
		Logging: LoggingConfig{Level: "info"},
		Settlement: SettlementConfig{
			FeeRateNumerator:   10,
			FeeRateDenominator: 100,
			Decimals:           6,
			TokenMint:          "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			TokenSymbol:        "USDC",
			QueryTimeout:       Duration(5 * time.Second),
			SubmitTimeout:      Duration(30 * time.Second),
			ExplorerURL:        "https://explorer.solana.com/tx/%s",
		},
		Solana: SolanaConfig{
			Commitment:   "confirmed",
			PollInterval: Duration(500 * time.Millisecond),
		},
		Identity: IdentityConfig{
			ChallengeTTL:   Duration(15 * time.Minute),
			VerifyTimeout:  Duration(10 * time.Second),
			SweepSchedule:  "@every 1m",
			OEmbedEndpoint: "https://publish.twitter.com/oembed",
		},
		Auth: AuthConfig{
			Issuer:       "capital-creator",
			SessionTTL:   Duration(24 * time.Hour),
			ChallengeTTL: Duration(5 * time.Minute),
		},
		Notifications: NotificationsConfig{
			Region:      "us-east-1",
			SendTimeout: Duration(10 * time.Second),
		},
	}
}

// LoadConfig loads configuration from defaults, the JSON file at
// configPath (if present), a .env file and environment variables, in that
// order.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func overrideWithEnv(config *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	unsigned := func(key string, dst *uint64) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = Duration(d)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = splitList(v)
		}
	}

	str("SERVER_HOST", &config.Server.Host)
	integer("SERVER_PORT", &config.Server.Port)
	str("GIN_MODE", &config.Server.Mode)
	list("ALLOWED_ORIGINS", &config.Server.AllowedOrigins)

	str("DATABASE_DRIVER", &config.Database.Driver)
	str("DATABASE_HOST", &config.Database.Host)
	integer("DATABASE_PORT", &config.Database.Port)
	str("DATABASE_USER", &config.Database.User)
	str("DATABASE_PASSWORD", &config.Database.Password)
	str("DATABASE_DBNAME", &config.Database.DBName)
	str("DATABASE_SSLMODE", &config.Database.SSLMode)

	str("LOG_LEVEL", &config.Logging.Level)
	boolean("LOG_DEVELOPMENT", &config.Logging.Development)

	unsigned("FEE_RATE_NUMERATOR", &config.Settlement.FeeRateNumerator)
	unsigned("FEE_RATE_DENOMINATOR", &config.Settlement.FeeRateDenominator)
	if v, ok := os.LookupEnv("TOKEN_DECIMALS"); ok {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("TOKEN_DECIMALS: %w", err))
		} else {
			config.Settlement.Decimals = int32(n)
		}
	}
	str("USDC_MINT", &config.Settlement.TokenMint)
	str("TOKEN_SYMBOL", &config.Settlement.TokenSymbol)
	str("TREASURY_ADDRESS", &config.Settlement.Treasury)
	str("FEE_PAYER_ADDRESS", &config.Settlement.FeePayer)
	duration("SETTLEMENT_QUERY_TIMEOUT", &config.Settlement.QueryTimeout)
	duration("SETTLEMENT_SUBMIT_TIMEOUT", &config.Settlement.SubmitTimeout)

	str("SOLANA_RPC_URL", &config.Solana.RPCURL)
	str("SOLANA_FEE_PAYER_KEY", &config.Solana.PlatformKey)
	list("SOLANA_CUSTODIAL_KEYS", &config.Solana.CustodialKeys)
	str("SOLANA_COMMITMENT", &config.Solana.Commitment)

	duration("IDENTITY_CHALLENGE_TTL", &config.Identity.ChallengeTTL)
	duration("IDENTITY_VERIFY_TIMEOUT", &config.Identity.VerifyTimeout)
	str("IDENTITY_SWEEP_SCHEDULE", &config.Identity.SweepSchedule)
	str("IDENTITY_OEMBED_ENDPOINT", &config.Identity.OEmbedEndpoint)

	str("JWT_SECRET", &config.Auth.JWTSecret)
	duration("SESSION_TTL", &config.Auth.SessionTTL)

	str("AWS_REGION", &config.Notifications.Region)
	str("AWS_ACCESS_KEY_ID", &config.Notifications.AccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &config.Notifications.SecretAccessKey)
	str("SES_FROM_ADDRESS", &config.Notifications.EmailFrom)
	boolean("SMS_ENABLED", &config.Notifications.SMSEnabled)
	str("SNS_SENDER_ID", &config.Notifications.SMSSenderID)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate rejects configurations the services cannot start with
func (c *Config) Validate() error {
	s := c.Settlement
	switch {
	case s.FeeRateDenominator == 0:
		return errors.New("settlement.fee_rate_denominator must be positive")
	case s.FeeRateNumerator > s.FeeRateDenominator:
		return errors.New("settlement fee rate exceeds 100%")
	case s.Decimals < 0 || s.Decimals > 18:
		return fmt.Errorf("settlement.decimals %d out of range", s.Decimals)
	case s.Treasury == "":
		return errors.New("settlement.treasury is required")
	case s.TokenMint == "":
		return errors.New("settlement.token_mint is required")
	case s.QueryTimeout <= 0 || s.SubmitTimeout <= 0:
		return errors.New("settlement timeouts must be positive")
	}

	if c.Identity.ChallengeTTL <= 0 || c.Identity.VerifyTimeout <= 0 {
		return errors.New("identity timeouts must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Solana.RPCURL != "" && c.Solana.PlatformKey == "" {
		return errors.New("solana.platform_key is required with an rpc url")
	}

	switch c.Database.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	return nil
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
