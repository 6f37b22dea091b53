package config

import (
	"os"
	"strconv"
	"strings"
)

// parseEnv overlays UMA_* environment variables. Malformed numeric values
// panic, as malformed flags do.
func parseEnv(config *Config) {
	strs := map[string]*string{
		"UMA_HTTP_ADDR":                       &config.EndpointAddrHTTP,
		"UMA_GRPC_ADDR":                       &config.EndpointAddrGRPC,
		"UMA_DATABASE_DSN":                    &config.DatabaseDSN,
		"UMA_JWT_SECRET":                      &config.SecretKey,
		"UMA_SIGNING_PRIVKEY":                 &config.SigningPrivKeyHex,
		"UMA_ENCRYPTION_PRIVKEY":              &config.EncryptionPrivKeyHex,
		"UMA_VASP_DOMAIN":                     &config.VaspDomain,
		"UMA_NODE_ID":                         &config.NodeID,
		"UMA_OSK_NODE_SIGNING_KEY_PASSWORD":   &config.OSKPassword,
		"UMA_REMOTE_SIGNING_NODE_MASTER_SEED": &config.RemoteSigningSeedHex,
		"UMA_BACKEND_URL":                     &config.BackendURL,
		"UMA_BACKEND_TOKEN":                   &config.BackendToken,
		"UMA_S3_ROOT_USER":                    &config.S3RootUser,
		"UMA_S3_ROOT_PASSWORD":                &config.S3RootPassword,
		"UMA_LOG_LEVEL":                       &config.LogLevel,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("UMA_BLOCKED_DOMAINS"); ok {
		config.BlockedDomains = splitList(v)
	}
	if v, ok := os.LookupEnv("UMA_ARCHIVE_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(err)
		}
		config.ArchiveEnabled = b
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
