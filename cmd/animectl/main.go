package main

import (
	"os"

	"github.com/animestream/authcore/internal/cli"
	"github.com/animestream/authcore/internal/config"
	"github.com/animestream/authcore/internal/logger"
)

func main() {
	config.Load()
	logger.Init()

	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
