// Command remedyd runs the remediation daemon in the foreground. It is the
// standalone equivalent of `remedy daemon` for service managers that launch
// the daemon directly.
package main

import (
	"context"
	"flag"
	"log"

	"remedy/internal/config"
	"remedy/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	socketPath := flag.String("socket", "", "daemon socket path")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	opts := daemonrun.Options{
		LogLevel:   cfg.Logging.Level,
		SocketPath: *socketPath,
	}
	if err := daemonrun.Run(context.Background(), cfg, opts); err != nil {
		log.Fatalf("run daemon: %v", err)
	}
}
