package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/evtops/tether/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "override tether config path (optional)")
	listen := flag.String("listen", "", "override the bind address (optional)")
	pollSeconds := flag.Int("poll", 0, "probe interval in seconds (optional, defaults to 10s)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{ConfigPath: *configPath, Listen: *listen}
	if poll := *pollSeconds; poll > 0 {
		opts.PollSeconds = poll
	}

	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "tether: %v\n", err)
		return 1
	}
	return 0
}
