package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dmitrijs2005/umasend/internal/client/api"
	"github.com/dmitrijs2005/umasend/internal/client/config"
	"github.com/spf13/cobra"
)

type app struct {
	cfg    *config.Config
	reader *bufio.Reader

	configPath string
	serverURL  string
	token      string
}

// Execute runs umactl with os.Args.
func Execute(ctx context.Context, cfg *config.Config) error {
	return NewRootCmd(cfg, os.Stdin).ExecuteContext(ctx)
}

// NewRootCmd builds the command tree. Prompts read from in.
func NewRootCmd(cfg *config.Config, in io.Reader) *cobra.Command {
	a := &app{cfg: cfg, reader: bufio.NewReader(in)}

	root := &cobra.Command{
		Use:          "umactl",
		Short:        "Operator CLI for a umasend sending VASP",
		SilenceUsage: true,
	}

	// -c/-config is consumed by config.LoadConfig before cobra runs.
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to JSON config file")
	root.PersistentFlags().StringVar(&a.serverURL, "server", "", "server base URL (overrides config)")
	root.PersistentFlags().StringVar(&a.token, "token", "", "access token (overrides config)")

	root.AddCommand(
		a.keygenCmd(),
		a.loginCmd(),
		a.pubKeysCmd(),
		a.lookupCmd(),
		a.payReqCmd(),
		a.sendCmd(),
		a.payCmd(),
	)
	return root
}

func (a *app) client() *api.Client {
	base := a.cfg.ServerURL
	if a.serverURL != "" {
		base = a.serverURL
	}
	token := a.cfg.Token
	if a.token != "" {
		token = a.token
	}
	return api.New(base, token, &http.Client{Timeout: a.cfg.RequestTimeout})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("print: %w", err)
	}
	return nil
}
