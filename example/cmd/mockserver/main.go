// Standalone mock billing backend for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	curl -X POST localhost:9999/api/checkout -d '{"plan_id":"team-professional-new-eur","quantity":3}'
//	go run ./cmd/billpoll watch -c example/billpoll.yaml
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/jpalmerr/billpoll/example/mockbilling"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	delay := flag.Duration("delay", 20*time.Second, "how long purchases stay invisible")
	declineAbove := flag.Int("decline-above", 10, "decline slot purchases larger than this")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	mock := &mockbilling.Server{Delay: *delay, DeclineAbove: *declineAbove, Logger: logger}

	fmt.Printf("Mock billing backend starting on %s\n", *addr)
	fmt.Printf("Purchases become visible %s after checkout\n", *delay)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	if err := http.ListenAndServe(*addr, mock.Handler()); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
