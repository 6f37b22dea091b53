package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/umasend/internal/flagx"
	"github.com/dmitrijs2005/umasend/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations
// accept both strings such as "250ms" and integer nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`

	SigningPrivKeyHex    string `json:"signing_privkey"`
	EncryptionPrivKeyHex string `json:"encryption_privkey"`
	VaspDomain           string `json:"vasp_domain"`
	TravelRuleFormat     string `json:"travel_rule_format"`

	NodeID               string `json:"node_id"`
	OSKPassword          string `json:"osk_node_signing_key_password"`
	RemoteSigningSeedHex string `json:"remote_signing_node_master_seed"`
	BackendURL           string `json:"backend_url"`
	BackendToken         string `json:"backend_token"`

	SessionTTL      timex.Duration `json:"session_ttl"`
	KeyCacheTTL     timex.Duration `json:"key_cache_ttl"`
	NonceMaxAge     timex.Duration `json:"nonce_max_age"`
	PollInterval    timex.Duration `json:"poll_interval"`
	MaxPollAttempts int            `json:"max_poll_attempts"`
	MaxFeeMsats     int64          `json:"max_fee_msats"`
	CallbackTimeout timex.Duration `json:"callback_timeout"`

	LookupRateLimit float64 `json:"lookup_rate_limit"`
	LookupBurst     int     `json:"lookup_burst"`

	BlockedDomains       []string `json:"blocked_domains"`
	DeniedNodes          []string `json:"denied_nodes"`
	DeniedUTXOs          []string `json:"denied_utxos"`
	ScreenMaxAmountMsats int64    `json:"screen_max_amount_msats"`

	ArchiveEnabled *bool  `json:"archive_enabled"`
	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	LogBackend     string `json:"log_backend"`
	LogLevel       string `json:"log_level"`
	MetricsEnabled *bool  `json:"metrics_enabled"`
}

// parseJson loads the file named by -c / -config, if any, and copies every
// field present in it over config. Unreadable or invalid files panic.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)

	setString(&config.SigningPrivKeyHex, c.SigningPrivKeyHex)
	setString(&config.EncryptionPrivKeyHex, c.EncryptionPrivKeyHex)
	setString(&config.VaspDomain, c.VaspDomain)
	setString(&config.TravelRuleFormat, c.TravelRuleFormat)

	setString(&config.NodeID, c.NodeID)
	setString(&config.OSKPassword, c.OSKPassword)
	setString(&config.RemoteSigningSeedHex, c.RemoteSigningSeedHex)
	setString(&config.BackendURL, c.BackendURL)
	setString(&config.BackendToken, c.BackendToken)

	setDuration(&config.SessionTTL, c.SessionTTL)
	setDuration(&config.KeyCacheTTL, c.KeyCacheTTL)
	setDuration(&config.NonceMaxAge, c.NonceMaxAge)
	setDuration(&config.PollInterval, c.PollInterval)
	setDuration(&config.CallbackTimeout, c.CallbackTimeout)
	if c.MaxPollAttempts != 0 {
		config.MaxPollAttempts = c.MaxPollAttempts
	}
	if c.MaxFeeMsats != 0 {
		config.MaxFeeMsats = c.MaxFeeMsats
	}
	if c.LookupRateLimit != 0 {
		config.LookupRateLimit = c.LookupRateLimit
	}
	if c.LookupBurst != 0 {
		config.LookupBurst = c.LookupBurst
	}

	if c.BlockedDomains != nil {
		config.BlockedDomains = c.BlockedDomains
	}
	if c.DeniedNodes != nil {
		config.DeniedNodes = c.DeniedNodes
	}
	if c.DeniedUTXOs != nil {
		config.DeniedUTXOs = c.DeniedUTXOs
	}
	if c.ScreenMaxAmountMsats != 0 {
		config.ScreenMaxAmountMsats = c.ScreenMaxAmountMsats
	}

	if c.ArchiveEnabled != nil {
		config.ArchiveEnabled = *c.ArchiveEnabled
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogLevel, c.LogLevel)
	if c.MetricsEnabled != nil {
		config.MetricsEnabled = *c.MetricsEnabled
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
