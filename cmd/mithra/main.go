// mithra is the fleet supervisor daemon: given a server-credentials file
// and a topology file, it schedules miner power against a household's
// three-phase grid connection and rooftop solar for the contract's
// current billing period, then exits at the period boundary so an
// external supervisor (systemd, a process manager) can restart it into
// the next one.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mithra-energy/mithra/internal/config"
)

const usage = `mithra - profitable solar energy utilization system

Usage:
  mithra -s <servers.ini> -c <topology.yaml>

Flags:
  -s, --servers FILE   PostgreSQL and MQTT server credentials plus contract terms (INI)
  -c, --config FILE    Guard/miner/plug topology (YAML)
`

func main() {
	var serversPath, configPath string
	fs := flag.NewFlagSet("mithra", flag.ExitOnError)
	fs.StringVar(&serversPath, "s", "", "path to server credentials INI file")
	fs.StringVar(&serversPath, "servers", "", "path to server credentials INI file")
	fs.StringVar(&configPath, "c", "", "path to topology YAML file")
	fs.StringVar(&configPath, "config", "", "path to topology YAML file")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	fs.Parse(os.Args[1:])

	if serversPath == "" || configPath == "" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := validateFile(serversPath); err != nil {
		log.Fatalf("servers file: %v", err)
	}
	if err := validateFile(configPath); err != nil {
		log.Fatalf("config file: %v", err)
	}

	servers, err := config.LoadServerConfig(serversPath)
	if err != nil {
		log.Fatalf("loading server config: %v", err)
	}
	topology, err := config.LoadTopology(configPath)
	if err != nil {
		log.Fatalf("loading topology: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal, winding down")
		cancel()
	}()

	if err := Run(ctx, servers, topology); err != nil {
		log.Fatalf("mithra: %v", err)
	}
}

func validateFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%q does not exist: %w", path, err)
	}
	return nil
}
