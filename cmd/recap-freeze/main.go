// Package main implements recap-freeze, a small CLI that triggers a
// freeze on a running recapd instance and prints the result.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	var (
		addr    string
		timeout time.Duration
	)

	flag.StringVar(&addr, "addr", "http://localhost:8080", "Base URL of the recapd service")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "recap-freeze - Trigger a report freeze\n\n")
		fmt.Fprintf(os.Stderr, "Usage: recap-freeze [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	client := &http.Client{Timeout: timeout}
	resp, err := client.Post(addr+"/v1/reports/freeze", "application/json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recap-freeze: request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recap-freeze: failed to read response: %v\n", err)
		os.Exit(1)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			fmt.Fprintf(os.Stderr, "recap-freeze: %s (%s)\n", errResp.Error, errResp.Code)
		} else {
			fmt.Fprintf(os.Stderr, "recap-freeze: unexpected status %d: %s\n", resp.StatusCode, body)
		}
		os.Exit(1)
	}

	var result struct {
		ReportID int64 `json:"report_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		fmt.Fprintf(os.Stderr, "recap-freeze: invalid response: %s\n", body)
		os.Exit(1)
	}

	fmt.Printf("froze report %d\n", result.ReportID)
}
