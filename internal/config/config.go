// Package config resolves the application configuration from
// ~/.voxvault/config.yaml and VOXVAULT_* environment variables into a
// typed snapshot that gets injected into constructors. Nothing outside
// this package reads viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Resolver holds the confidence-policy thresholds.
type Resolver struct {
	Accept           float64
	LLMEscalateBelow float64
	ConfirmFloor     float64
	FuzzyFloor       int
}

// LLM configures the optional escalation collaborator.
type LLM struct {
	Enabled  bool
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Config is the resolved application configuration.
type Config struct {
	BaseDir     string
	VaultPath   string
	CatalogPath string
	BackupDir   string
	AuditDir    string
	IdleTimeout time.Duration
	LogLevel    string
	Resolver    Resolver
	LLM         LLM
}

// Load reads the config file (explicit path, or config.yaml under the
// base directory) and environment overrides. A missing file is fine;
// defaults cover every key.
func Load(cfgFile string) (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("config: cannot resolve home directory: %w", err)
	}
	base := filepath.Join(home, ".voxvault")

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(base)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("VOXVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, base)

	if err := v.ReadInConfig(); err != nil {
		// Only a missing default config file is tolerable; an explicit
		// path or a malformed file is an error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	cfg := &Config{
		BaseDir:     base,
		VaultPath:   v.GetString("vault_path"),
		CatalogPath: v.GetString("catalog_path"),
		BackupDir:   v.GetString("backup_dir"),
		AuditDir:    v.GetString("audit_dir"),
		IdleTimeout: v.GetDuration("idle_timeout"),
		LogLevel:    v.GetString("log_level"),
		Resolver: Resolver{
			Accept:           v.GetFloat64("resolver.accept"),
			LLMEscalateBelow: v.GetFloat64("resolver.llm_escalate_below"),
			ConfirmFloor:     v.GetFloat64("resolver.confirm_floor"),
			FuzzyFloor:       v.GetInt("resolver.fuzzy_floor"),
		},
		LLM: LLM{
			Enabled:  v.GetBool("llm.enabled"),
			Endpoint: v.GetString("llm.endpoint"),
			Model:    v.GetString("llm.model"),
			APIKey:   v.GetString("llm.api_key"),
			Timeout:  v.GetDuration("llm.timeout"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, base string) {
	v.SetDefault("vault_path", filepath.Join(base, "vault.db"))
	v.SetDefault("catalog_path", filepath.Join(base, "sites.json"))
	v.SetDefault("backup_dir", filepath.Join(base, "backups"))
	v.SetDefault("audit_dir", filepath.Join(base, "audit"))
	v.SetDefault("idle_timeout", "5m")
	v.SetDefault("log_level", "info")
	v.SetDefault("resolver.accept", 0.88)
	v.SetDefault("resolver.llm_escalate_below", 0.82)
	v.SetDefault("resolver.confirm_floor", 0.75)
	v.SetDefault("resolver.fuzzy_floor", 70)
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "5s")
}
