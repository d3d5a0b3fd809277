package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/regionscan/regionscan/internal/cli/regionscanctl"
	"github.com/regionscan/regionscan/internal/config"
)

func main() {
	cfg, err := config.LoadFromEnv("regionscanctl")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := regionscanctl.Run(ctx, os.Args[1:], regionscanctl.Options{
		Config: cfg,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	stop()
	os.Exit(code)
}
