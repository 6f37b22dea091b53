package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/umasend/internal/client/cli"
	"github.com/dmitrijs2005/umasend/internal/client/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	if err := cli.Execute(ctx, cfg); err != nil {
		os.Exit(1)
	}

}
