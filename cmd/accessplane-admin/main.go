package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/accessplane/pkg/cli"
)

func main() {
	logLevel := flag.String("log-level", getEnv("ACCESSPLANE_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	rootCmd := cli.NewRootCommand(cli.NewApp(logger))

	if err := rootCmd.Execute(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
