// Package config loads runtime configuration for the umactl CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. UMACTL_SERVER_URL, UMACTL_TOKEN and UMACTL_TIMEOUT environment variables.
//  4. Command-line flags of the individual commands, applied by the caller.
//
// # JSON schema
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "token": "eyJ...",
//	  "request_timeout": "30s"
//	}
package config
