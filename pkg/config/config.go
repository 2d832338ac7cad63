package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	configName = "config"
	configType = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		DSN            string `mapstructure:"DSN"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		Metrics        bool   `mapstructure:"METRICS"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Admin struct {
		TokenHash string `mapstructure:"TOKEN_HASH"`
	} `mapstructure:"ADMIN"`
	License struct {
		ValidatePath string `mapstructure:"VALIDATE_PATH"`
	} `mapstructure:"LICENSE"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "licensekeeper")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("NODE_ID", 1)

	v.SetDefault("TLS.ENABLE", false)
	v.SetDefault("TLS.CERT_PATH", "")
	v.SetDefault("TLS.KEY_PATH", "")

	v.SetDefault("OTEL.ADDR", "")
	v.SetDefault("OTEL.PROTOCOL", "grpc")
	v.SetDefault("PYROSCOPE.ADDR", "")

	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")

	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.DSN", "")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.DBNAME", "licensekeeper")
	v.SetDefault("DATABASE.USER", "")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.AUTO_MIGRATE", true)
	v.SetDefault("DATABASE.METRICS", false)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 5)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 20)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 5*time.Minute)

	v.SetDefault("ADMIN.TOKEN_HASH", "")
	v.SetDefault("LICENSE.VALIDATE_PATH", "/api")
}

// LoadConfig reads config.yaml (from CONFIG_PATH or the working directory), or a
// remote provider when REMOTE_CONFIG_PROVIDER is set, then applies environment
// overrides and, when a Vault client is available, the secrets overlay.
func LoadConfig(p Params) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType(configType)

	if provider, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		if err := readRemote(v, provider); err != nil {
			return nil, err
		}
	} else if err := readLocal(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if p.Vault != nil {
		if err := applyVaultSecrets(context.Background(), p.Vault, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readLocal(v *viper.Viper) error {
	v.SetConfigName(configName)
	if path, ok := os.LookupEnv("CONFIG_PATH"); ok && path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			zap.L().Info("no config file found, using defaults and environment")
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	zap.L().Info("config loaded", zap.String("file", v.ConfigFileUsed()))
	return nil
}

func readRemote(v *viper.Viper, provider string) error {
	addr := os.Getenv("REMOTE_CONFIG_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8500"
	}

	path := os.Getenv("REMOTE_CONFIG_PATH")
	if path == "" {
		path = "licensekeeper/development"
	}

	if err := v.AddRemoteProvider(provider, addr, path); err != nil {
		return fmt.Errorf("add remote config provider: %w", err)
	}

	if err := v.ReadRemoteConfig(); err != nil {
		return fmt.Errorf("read remote config: %w", err)
	}

	zap.L().Info("remote config loaded", zap.String("provider", provider), zap.String("path", path))
	return nil
}

func applyVaultSecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		return fmt.Errorf("read vault secrets: %w", err)
	}
	zap.L().Info("Success Get Secret")

	get := func(key string) string {
		if val, ok := secret.Data.Data[key].(string); ok {
			return val
		}
		return ""
	}

	if v := get("database_user"); v != "" {
		cfg.Database.User = v
	}
	if v := get("database_password"); v != "" {
		cfg.Database.Password = v
	}
	if v := get("admin_token_hash"); v != "" {
		cfg.Admin.TokenHash = v
	}

	return nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.TLS.Enable && (c.TLS.CertPath == "" || c.TLS.KeyPath == "") {
		return fmt.Errorf("tls enabled but TLS.CERT_PATH or TLS.KEY_PATH not provided")
	}

	if !strings.HasPrefix(c.License.ValidatePath, "/") {
		return fmt.Errorf("LICENSE.VALIDATE_PATH must start with '/', got %q", c.License.ValidatePath)
	}

	return nil
}
