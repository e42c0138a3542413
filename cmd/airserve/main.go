// Command airserve runs an `air.Air` instance as a standalone HTTP server,
// serving a static asset root and nothing else out of the box — a minimal
// host for the framework, not an application.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"context"

	"github.com/airframe/airframe"
	"github.com/airframe/airframe/air/gas"
)

func main() {
	address := flag.String("address", "", "TCP address to listen on")
	configFile := flag.String(
		"config",
		"",
		"path to a TOML/YAML/JSON configuration file",
	)
	assetRoot := flag.String(
		"assets",
		"",
		"directory of static assets to serve at /",
	)
	shutdownTimeout := flag.Duration(
		"shutdown-timeout",
		10*time.Second,
		"how long to wait for in-flight requests during a graceful shutdown",
	)
	flag.Parse()

	a := air.Default
	if *address != "" {
		a.Address = *address
	}
	a.ConfigFile = *configFile

	a.Pregases = append(a.Pregases, gas.Recover())
	a.Pregases = append(a.Pregases, gas.Logger(gas.LoggerConfig{}))

	if *assetRoot != "" {
		a.FILES("/", *assetRoot)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		ctx, cancel := context.WithTimeout(
			context.Background(),
			*shutdownTimeout,
		)
		defer cancel()

		if err := a.Shutdown(ctx); err != nil {
			log.Printf("airserve: shutdown error: %v", err)
		}
	}()

	if err := a.Serve(); err != nil {
		log.Fatalf("airserve: %v", err)
	}
}
