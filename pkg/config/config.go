package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hengadev/errsx"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "/etc/phivault"
	ConfigFileName    = "phivault.yml"
)

// ValidAuditDrivers lists the SQL drivers the audit mirror accepts.
var ValidAuditDrivers = []string{"postgres", "sqlite3"}

// ValidDataKeySources lists where the master data key can come from.
var ValidDataKeySources = []string{"env", "vault"}

// PhivaultConfig holds all phivault configuration settings
type PhivaultConfig struct {
	// MaxFailedAttempts is the number of denied permission checks that lock a principal out
	MaxFailedAttempts int `yaml:"max_failed_attempts" json:"max_failed_attempts"`

	// LockoutDurationSeconds is the window failed attempts are counted in and the lockout length
	LockoutDurationSeconds int `yaml:"lockout_duration_seconds" json:"lockout_duration_seconds"`

	// SymmetricKeyTTLDays is the lifetime of new symmetric keys
	SymmetricKeyTTLDays int `yaml:"symmetric_key_ttl_days" json:"symmetric_key_ttl_days"`

	// RotationHorizonDays is how far ahead rotation checks look for expiring keys
	RotationHorizonDays int `yaml:"rotation_horizon_days" json:"rotation_horizon_days"`

	// RSAKeyBits is the modulus size of generated key pairs
	RSAKeyBits int `yaml:"rsa_key_bits" json:"rsa_key_bits"`

	// MaxConsentDurationSeconds caps consent grants
	MaxConsentDurationSeconds int `yaml:"max_consent_duration_seconds" json:"max_consent_duration_seconds"`

	// MaxEmergencyDurationSeconds caps emergency access grants
	MaxEmergencyDurationSeconds int `yaml:"max_emergency_duration_seconds" json:"max_emergency_duration_seconds"`

	// SpotCheckSampleSize is the number of batch items fully unprotected on verification
	SpotCheckSampleSize int `yaml:"spot_check_sample_size" json:"spot_check_sample_size"`

	// BatchChunkSize is the number of items protected per ledger invocation
	BatchChunkSize int `yaml:"batch_chunk_size" json:"batch_chunk_size"`

	// AccessTokenTTLSeconds is the lifetime of record access tokens
	AccessTokenTTLSeconds int `yaml:"access_token_ttl_seconds" json:"access_token_ttl_seconds"`

	// ApprovalThresholds maps role names to required multi-sig approvals
	ApprovalThresholds map[string]int `yaml:"approval_thresholds" json:"approval_thresholds"`

	// AuditEnabled mirrors audit entries to syslog output
	AuditEnabled bool `yaml:"audit_enabled" json:"audit_enabled"`

	// AuditDatabaseDriver is the SQL driver of the audit mirror
	AuditDatabaseDriver string `yaml:"audit_database_driver" json:"audit_database_driver"`

	// AuditDatabaseURL enables the SQL audit mirror when set
	AuditDatabaseURL string `yaml:"audit_database_url" json:"audit_database_url"`

	// KafkaBrokers receive domain events when set
	KafkaBrokers []string `yaml:"kafka_brokers" json:"kafka_brokers"`

	// KafkaTopic is the topic domain events are published to
	KafkaTopic string `yaml:"kafka_topic" json:"kafka_topic"`

	// DataKeySource is "env" or "vault"
	DataKeySource string `yaml:"data_key_source" json:"data_key_source"`

	// VaultDataKeyPath is the KV v2 data path holding the data key
	VaultDataKeyPath string `yaml:"vault_data_key_path" json:"vault_data_key_path"`

	// AccessPolicyPath optionally replaces the built-in capability table
	AccessPolicyPath string `yaml:"access_policy_path" json:"access_policy_path"`

	// MetricsAddress is the listen address of the ops server
	MetricsAddress string `yaml:"metrics_address" json:"metrics_address"`

	// MaintenanceIntervalSeconds is the period of the maintenance sweep
	MaintenanceIntervalSeconds int `yaml:"maintenance_interval_seconds" json:"maintenance_interval_seconds"`

	// sources tracks where each value came from
	sources map[string]string

	// configFilePath is the path to the config file
	configFilePath string
}

// Attribute represents a configuration attribute with its value and source
type Attribute struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// Global singleton config
var (
	globalConfig *PhivaultConfig
	configMu     sync.RWMutex
)

// Get returns the global configuration, loading it if necessary
func Get() *PhivaultConfig {
	configMu.RLock()
	if globalConfig != nil {
		configMu.RUnlock()
		return globalConfig
	}
	configMu.RUnlock()

	configMu.Lock()
	defer configMu.Unlock()

	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			// Return defaults on error
			globalConfig = newDefault()
		} else {
			globalConfig = cfg
		}
	}
	return globalConfig
}

// Reload reloads the configuration from file and environment
func Reload() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
	return nil
}

// Default returns a config holding only default values.
func Default() *PhivaultConfig {
	c := newDefault()
	for _, name := range attributeNames() {
		c.sources[name] = "default"
	}
	return c
}

func newDefault() *PhivaultConfig {
	return &PhivaultConfig{
		MaxFailedAttempts:           5,
		LockoutDurationSeconds:      900,
		SymmetricKeyTTLDays:         30,
		RotationHorizonDays:         7,
		RSAKeyBits:                  2048,
		MaxConsentDurationSeconds:   365 * 24 * 60 * 60,
		MaxEmergencyDurationSeconds: 24 * 60 * 60,
		SpotCheckSampleSize:         3,
		BatchChunkSize:              50,
		AccessTokenTTLSeconds:       300,
		ApprovalThresholds:          map[string]int{"doctor": 2, "hospital": 3, "admin": 1},
		AuditEnabled:                true,
		AuditDatabaseDriver:         "postgres",
		KafkaBrokers:                []string{},
		KafkaTopic:                  "phivault.events",
		DataKeySource:               "env",
		VaultDataKeyPath:            "secret/data/phivault",
		MetricsAddress:              ":9090",
		MaintenanceIntervalSeconds:  300,
		sources:                     make(map[string]string),
	}
}

// Load loads configuration from file and environment variables
// Environment variables take precedence over file values
func Load() (*PhivaultConfig, error) {
	config := Default()

	configPath := os.Getenv("PHIVAULT_CONFIG_PATH")
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	config.configFilePath = filepath.Join(configPath, ConfigFileName)

	if data, err := os.ReadFile(config.configFilePath); err == nil {
		var fileConfig PhivaultConfig
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", config.configFilePath, err)
		}
		config.applyFileConfig(&fileConfig, data)
	}

	config.applyEnvConfig()

	return config, nil
}

func attributeNames() []string {
	return []string{
		"max_failed_attempts", "lockout_duration_seconds",
		"symmetric_key_ttl_days", "rotation_horizon_days", "rsa_key_bits",
		"max_consent_duration_seconds", "max_emergency_duration_seconds",
		"spot_check_sample_size", "batch_chunk_size", "access_token_ttl_seconds",
		"approval_thresholds", "audit_enabled", "audit_database_driver",
		"audit_database_url", "kafka_brokers", "kafka_topic", "data_key_source",
		"vault_data_key_path", "access_policy_path", "metrics_address",
		"maintenance_interval_seconds",
	}
}

func (c *PhivaultConfig) applyFileConfig(file *PhivaultConfig, raw []byte) {
	setInt := func(name string, dst *int, v int) {
		if v != 0 {
			*dst = v
			c.sources[name] = "file"
		}
	}
	setString := func(name string, dst *string, v string) {
		if v != "" {
			*dst = v
			c.sources[name] = "file"
		}
	}

	setInt("max_failed_attempts", &c.MaxFailedAttempts, file.MaxFailedAttempts)
	setInt("lockout_duration_seconds", &c.LockoutDurationSeconds, file.LockoutDurationSeconds)
	setInt("symmetric_key_ttl_days", &c.SymmetricKeyTTLDays, file.SymmetricKeyTTLDays)
	setInt("rotation_horizon_days", &c.RotationHorizonDays, file.RotationHorizonDays)
	setInt("rsa_key_bits", &c.RSAKeyBits, file.RSAKeyBits)
	setInt("max_consent_duration_seconds", &c.MaxConsentDurationSeconds, file.MaxConsentDurationSeconds)
	setInt("max_emergency_duration_seconds", &c.MaxEmergencyDurationSeconds, file.MaxEmergencyDurationSeconds)
	setInt("spot_check_sample_size", &c.SpotCheckSampleSize, file.SpotCheckSampleSize)
	setInt("batch_chunk_size", &c.BatchChunkSize, file.BatchChunkSize)
	setInt("access_token_ttl_seconds", &c.AccessTokenTTLSeconds, file.AccessTokenTTLSeconds)
	setInt("maintenance_interval_seconds", &c.MaintenanceIntervalSeconds, file.MaintenanceIntervalSeconds)
	setString("audit_database_driver", &c.AuditDatabaseDriver, file.AuditDatabaseDriver)
	setString("audit_database_url", &c.AuditDatabaseURL, file.AuditDatabaseURL)
	setString("kafka_topic", &c.KafkaTopic, file.KafkaTopic)
	setString("data_key_source", &c.DataKeySource, file.DataKeySource)
	setString("vault_data_key_path", &c.VaultDataKeyPath, file.VaultDataKeyPath)
	setString("access_policy_path", &c.AccessPolicyPath, file.AccessPolicyPath)
	setString("metrics_address", &c.MetricsAddress, file.MetricsAddress)

	if len(file.ApprovalThresholds) > 0 {
		for role, n := range file.ApprovalThresholds {
			c.ApprovalThresholds[role] = n
		}
		c.sources["approval_thresholds"] = "file"
	}
	if len(file.KafkaBrokers) > 0 {
		c.KafkaBrokers = file.KafkaBrokers
		c.sources["kafka_brokers"] = "file"
	}

	// a bool's zero value is meaningful, so only honor it when the key is present
	var present map[string]any
	if yaml.Unmarshal(raw, &present) == nil {
		if _, ok := present["audit_enabled"]; ok {
			c.AuditEnabled = file.AuditEnabled
			c.sources["audit_enabled"] = "file"
		}
	}
}

func (c *PhivaultConfig) applyEnvConfig() {
	envInt := func(name, env string, dst *int) {
		if val := os.Getenv(env); val != "" {
			if i, err := strconv.Atoi(val); err == nil {
				*dst = i
				c.sources[name] = "environment"
			}
		}
	}
	envString := func(name, env string, dst *string) {
		if val := os.Getenv(env); val != "" {
			*dst = val
			c.sources[name] = "environment"
		}
	}

	envInt("max_failed_attempts", "PHIVAULT_MAX_FAILED_ATTEMPTS", &c.MaxFailedAttempts)
	envInt("lockout_duration_seconds", "PHIVAULT_LOCKOUT_DURATION_SECONDS", &c.LockoutDurationSeconds)
	envInt("symmetric_key_ttl_days", "PHIVAULT_SYMMETRIC_KEY_TTL_DAYS", &c.SymmetricKeyTTLDays)
	envInt("rotation_horizon_days", "PHIVAULT_ROTATION_HORIZON_DAYS", &c.RotationHorizonDays)
	envInt("rsa_key_bits", "PHIVAULT_RSA_KEY_BITS", &c.RSAKeyBits)
	envInt("max_consent_duration_seconds", "PHIVAULT_MAX_CONSENT_DURATION_SECONDS", &c.MaxConsentDurationSeconds)
	envInt("max_emergency_duration_seconds", "PHIVAULT_MAX_EMERGENCY_DURATION_SECONDS", &c.MaxEmergencyDurationSeconds)
	envInt("spot_check_sample_size", "PHIVAULT_SPOT_CHECK_SAMPLE_SIZE", &c.SpotCheckSampleSize)
	envInt("batch_chunk_size", "PHIVAULT_BATCH_CHUNK_SIZE", &c.BatchChunkSize)
	envInt("access_token_ttl_seconds", "PHIVAULT_ACCESS_TOKEN_TTL_SECONDS", &c.AccessTokenTTLSeconds)
	envInt("maintenance_interval_seconds", "PHIVAULT_MAINTENANCE_INTERVAL_SECONDS", &c.MaintenanceIntervalSeconds)
	envString("audit_database_driver", "PHIVAULT_AUDIT_DATABASE_DRIVER", &c.AuditDatabaseDriver)
	envString("audit_database_url", "AUDIT_DATABASE_URL", &c.AuditDatabaseURL)
	envString("kafka_topic", "PHIVAULT_KAFKA_TOPIC", &c.KafkaTopic)
	envString("data_key_source", "PHIVAULT_DATA_KEY_SOURCE", &c.DataKeySource)
	envString("vault_data_key_path", "PHIVAULT_VAULT_DATA_KEY_PATH", &c.VaultDataKeyPath)
	envString("access_policy_path", "PHIVAULT_ACCESS_POLICY_PATH", &c.AccessPolicyPath)
	envString("metrics_address", "PHIVAULT_METRICS_ADDRESS", &c.MetricsAddress)

	if val := os.Getenv("PHIVAULT_AUDIT_ENABLED"); val != "" {
		c.AuditEnabled = val != "false" && val != "0" && val != "no"
		c.sources["audit_enabled"] = "environment"
	}
	if val := os.Getenv("PHIVAULT_KAFKA_BROKERS"); val != "" {
		c.KafkaBrokers = splitAndTrim(val)
		c.sources["kafka_brokers"] = "environment"
	}
	if val := os.Getenv("PHIVAULT_APPROVAL_THRESHOLDS"); val != "" {
		// role=n pairs, comma separated
		for _, pair := range splitAndTrim(val) {
			role, n, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
				c.ApprovalThresholds[strings.TrimSpace(role)] = i
				c.sources["approval_thresholds"] = "environment"
			}
		}
	}
}

// ConfigFilePath returns the path to the config file
func (c *PhivaultConfig) ConfigFilePath() string {
	return c.configFilePath
}

// Source returns the source of a configuration attribute
func (c *PhivaultConfig) Source(name string) string {
	if c.sources == nil {
		return "default"
	}
	if s, ok := c.sources[name]; ok {
		return s
	}
	return "default"
}

func (c *PhivaultConfig) LockoutDuration() time.Duration {
	return time.Duration(c.LockoutDurationSeconds) * time.Second
}

func (c *PhivaultConfig) SymmetricKeyTTL() time.Duration {
	return time.Duration(c.SymmetricKeyTTLDays) * 24 * time.Hour
}

func (c *PhivaultConfig) MaxConsentDuration() time.Duration {
	return time.Duration(c.MaxConsentDurationSeconds) * time.Second
}

func (c *PhivaultConfig) MaxEmergencyDuration() time.Duration {
	return time.Duration(c.MaxEmergencyDurationSeconds) * time.Second
}

func (c *PhivaultConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLSeconds) * time.Second
}

func (c *PhivaultConfig) MaintenanceInterval() time.Duration {
	return time.Duration(c.MaintenanceIntervalSeconds) * time.Second
}

// Validate collects every invalid attribute into one error.
func (c *PhivaultConfig) Validate() error {
	var errs errsx.Map

	positive := map[string]int{
		"max_failed_attempts":            c.MaxFailedAttempts,
		"lockout_duration_seconds":       c.LockoutDurationSeconds,
		"symmetric_key_ttl_days":         c.SymmetricKeyTTLDays,
		"rotation_horizon_days":          c.RotationHorizonDays,
		"max_consent_duration_seconds":   c.MaxConsentDurationSeconds,
		"max_emergency_duration_seconds": c.MaxEmergencyDurationSeconds,
		"spot_check_sample_size":         c.SpotCheckSampleSize,
		"batch_chunk_size":               c.BatchChunkSize,
		"access_token_ttl_seconds":       c.AccessTokenTTLSeconds,
		"maintenance_interval_seconds":   c.MaintenanceIntervalSeconds,
	}
	for name, v := range positive {
		if v <= 0 {
			errs.Set(name, fmt.Sprintf("%s must be positive, got %d", name, v))
		}
	}

	if c.RSAKeyBits < 2048 {
		errs.Set("rsa_key_bits", fmt.Sprintf("rsa_key_bits must be at least 2048, got %d", c.RSAKeyBits))
	}
	if c.MaxConsentDurationSeconds > 365*24*60*60 {
		errs.Set("max_consent_duration_seconds", "max_consent_duration_seconds must not exceed 365 days")
	}
	if c.MaxEmergencyDurationSeconds > 24*60*60 {
		errs.Set("max_emergency_duration_seconds", "max_emergency_duration_seconds must not exceed 24 hours")
	}
	for role, n := range c.ApprovalThresholds {
		if n < 0 {
			errs.Set("approval_thresholds", fmt.Sprintf("threshold for %s must not be negative", role))
		}
	}
	if !contains(ValidAuditDrivers, c.AuditDatabaseDriver) {
		errs.Set("audit_database_driver", fmt.Sprintf("invalid audit database driver: %s", c.AuditDatabaseDriver))
	}
	if !contains(ValidDataKeySources, c.DataKeySource) {
		errs.Set("data_key_source", fmt.Sprintf("invalid data key source: %s", c.DataKeySource))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs.Set("kafka_topic", "kafka_topic is required when kafka_brokers is set")
	}

	if !errs.IsEmpty() {
		return errs.AsError()
	}
	return nil
}

// Attributes returns all configuration attributes with their values and sources
func (c *PhivaultConfig) Attributes() []Attribute {
	thresholds := make([]string, 0, len(c.ApprovalThresholds))
	for role, n := range c.ApprovalThresholds {
		thresholds = append(thresholds, fmt.Sprintf("%s=%d", role, n))
	}
	sort.Strings(thresholds)

	auditURL := c.AuditDatabaseURL
	if auditURL != "" {
		auditURL = "(set)"
	}

	attr := func(name, value string) Attribute {
		return Attribute{Name: name, Value: value, Source: c.Source(name)}
	}
	return []Attribute{
		attr("max_failed_attempts", strconv.Itoa(c.MaxFailedAttempts)),
		attr("lockout_duration_seconds", strconv.Itoa(c.LockoutDurationSeconds)),
		attr("symmetric_key_ttl_days", strconv.Itoa(c.SymmetricKeyTTLDays)),
		attr("rotation_horizon_days", strconv.Itoa(c.RotationHorizonDays)),
		attr("rsa_key_bits", strconv.Itoa(c.RSAKeyBits)),
		attr("max_consent_duration_seconds", strconv.Itoa(c.MaxConsentDurationSeconds)),
		attr("max_emergency_duration_seconds", strconv.Itoa(c.MaxEmergencyDurationSeconds)),
		attr("spot_check_sample_size", strconv.Itoa(c.SpotCheckSampleSize)),
		attr("batch_chunk_size", strconv.Itoa(c.BatchChunkSize)),
		attr("access_token_ttl_seconds", strconv.Itoa(c.AccessTokenTTLSeconds)),
		attr("approval_thresholds", strings.Join(thresholds, ",")),
		attr("audit_enabled", strconv.FormatBool(c.AuditEnabled)),
		attr("audit_database_driver", c.AuditDatabaseDriver),
		attr("audit_database_url", auditURL),
		attr("kafka_brokers", strings.Join(c.KafkaBrokers, ",")),
		attr("kafka_topic", c.KafkaTopic),
		attr("data_key_source", c.DataKeySource),
		attr("vault_data_key_path", c.VaultDataKeyPath),
		attr("access_policy_path", c.AccessPolicyPath),
		attr("metrics_address", c.MetricsAddress),
		attr("maintenance_interval_seconds", strconv.Itoa(c.MaintenanceIntervalSeconds)),
	}
}

// FormatText returns a text representation of the configuration
func (c *PhivaultConfig) FormatText() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Config file: %s\n\n", c.configFilePath))
	sb.WriteString(fmt.Sprintf("%-40s %-30s %s\n", "NAME", "VALUE", "SOURCE"))
	sb.WriteString(fmt.Sprintf("%-40s %-30s %s\n", "----", "-----", "------"))

	for _, attr := range c.Attributes() {
		value := attr.Value
		if value == "" {
			value = "(not set)"
		}
		sb.WriteString(fmt.Sprintf("%-40s %-30s %s\n", attr.Name, value, attr.Source))
	}
	return sb.String()
}

// FormatJSON returns a JSON representation of the configuration
func (c *PhivaultConfig) FormatJSON() (string, error) {
	result := map[string]interface{}{
		"config_file": c.configFilePath,
		"attributes":  c.Attributes(),
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
