package config

import (
	"os"
	"time"
)

func parseEnv(cfg *Config) {
	if v, ok := os.LookupEnv("UMACTL_SERVER_URL"); ok && v != "" {
		cfg.ServerURL = v
	}
	if v, ok := os.LookupEnv("UMACTL_TOKEN"); ok && v != "" {
		cfg.Token = v
	}
	if v, ok := os.LookupEnv("UMACTL_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(err)
		}
		cfg.RequestTimeout = d
	}
}
