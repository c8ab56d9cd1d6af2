package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	cmd := newRootCommand(logger)
	if err := cmd.Execute(); err != nil {
		logger.WithError(err).Error("upscaler failed")
		os.Exit(1)
	}
}
