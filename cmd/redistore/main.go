// Command redistore runs a single node: a primary by default, or a
// replica when --replicaof is set.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nishisan-dev/redistore/internal/config"
	"github.com/nishisan-dev/redistore/internal/logging"
	"github.com/nishisan-dev/redistore/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	port := flag.Int("port", 0, "listening port")
	dir := flag.String("dir", "", "working directory for the startup snapshot")
	dbfilename := flag.String("dbfilename", "", "startup snapshot filename, or s3://bucket/key")
	replicaof := flag.String("replicaof", "", "\"<host> <port>\" of the primary to replicate from")
	flag.Parse()

	opts := config.CLIOptions{ConfigPath: *configPath}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			opts.Port = port
		case "dir":
			opts.Dir = dir
		case "dbfilename":
			opts.DBFilename = dbfilename
		case "replicaof":
			opts.ReplicaOf = replicaof
		}
	})

	cfg, err := config.Load(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := server.Run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
