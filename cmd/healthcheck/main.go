// Package main provides the container probe for arcade-server. It requests a
// health endpoint and exits 0 when the server reports itself healthy.
// Usage: healthcheck [-timeout 5s] [http://localhost:8080/readyz]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const defaultURL = "http://localhost:8080/readyz"

// healthyStatuses are the status values served by /healthz and /readyz on
// success.
var healthyStatuses = map[string]bool{"alive": true, "ready": true}

func main() {
	timeout := flag.Duration("timeout", 5*time.Second, "Request timeout")
	flag.Parse()

	url := defaultURL
	if flag.NArg() > 0 {
		url = flag.Arg(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := probe(ctx, http.DefaultClient, url); err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
}

func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	var payload struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if payload.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, payload.Error)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if payload.Status != "" && !healthyStatuses[payload.Status] {
		return fmt.Errorf("server reports %q", payload.Status)
	}
	return nil
}
