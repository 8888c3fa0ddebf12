// rsdnn-status - follow or control a running rsdnn over its web API.
//
// Usage:
//
//	rsdnn-status                      # follow status updates
//	rsdnn-status -once                # print the current status and exit
//	rsdnn-status stream/start         # run a control action
//	rsdnn-status detection/on
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-rsdnn/pkg/remote"
)

func main() {
	addr := flag.String("addr", envOr("RSDNN_ADDR", "http://localhost:8080"), "rsdnn server address")
	once := flag.Bool("once", false, "Print the current status and exit")
	raw := flag.Bool("json", false, "Print raw JSON")
	flag.Parse()

	client, err := remote.New(*addr)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if action := flag.Arg(0); action != "" {
		out, err := client.Action(ctx, action)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		printJSON(out)
		return
	}

	if *once {
		st, err := client.Status(ctx)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		printStatus(st, *raw)
		return
	}

	err = client.Watch(ctx, func(st remote.Status) {
		printStatus(st, *raw)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("❌ %v", err)
	}
}

func printStatus(st remote.Status, raw bool) {
	if raw {
		printJSON(st)
		return
	}

	fmt.Printf("started=%v detecting=%v backend=%s ticks=%d errors=%d tick=%s\n",
		st.Started, st.DetectionEnabled, st.Backend, st.Ticks, st.Errors, st.TickTime)
	for _, a := range st.Detections {
		fmt.Printf("  %s (%.2f)\n", a.Label, a.Detection.Confidence)
	}
	if st.LastError != "" {
		fmt.Printf("  last error: %s\n", st.LastError)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
