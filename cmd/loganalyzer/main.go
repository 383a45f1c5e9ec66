package main

import (
	"os"

	"github.com/G-Research/loganalyzer/cmd/loganalyzer/cmd"
	"github.com/G-Research/loganalyzer/internal/common/logging"
)

func main() {
	logging.ConfigureCommandLineLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
