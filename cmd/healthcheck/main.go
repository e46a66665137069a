// Package main implements the container health probe. Without
// arguments it checks liveness (/healthz); "ready" probes /ready
// instead, which also requires the database and the stock directory
// to be usable. Failure details go to stderr so they show up in the
// container runtime's health log.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "10000"
	}

	path := "/healthz"
	if len(os.Args) > 1 && os.Args[1] == "ready" {
		path = "/ready"
	}

	client := &http.Client{Timeout: 8 * time.Second}
	resp, err := client.Get("http://localhost:" + port + path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "probe %s: %v\n", path, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		fmt.Fprintf(os.Stderr, "probe %s: status %d: %s\n", path, resp.StatusCode, body)
		os.Exit(1)
	}
}
