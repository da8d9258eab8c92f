package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Load test: one device posting sms batches as fast as the workers allow.
// Expect roughly RATE_LIMIT_MAX_REQUESTS admitted per window and the rest 429.
func main() {
	baseURL := "http://localhost:3000/api"
	if v := os.Getenv("LOADTEST_URL"); v != "" {
		baseURL = v
	}
	deviceID := "0123456789abcdef0123456789abcdef"
	credential := "loadtest-key"

	var admitted, limited, failed int64
	var wg sync.WaitGroup

	numRequests := 1000
	concurrentWorkers := 50

	startTime := time.Now()

	jobs := make(chan int, numRequests)

	for w := 0; w < concurrentWorkers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for range jobs {
				switch status := post(baseURL, credential, deviceID); {
				case status == http.StatusOK:
					atomic.AddInt64(&admitted, 1)
				case status == http.StatusTooManyRequests:
					atomic.AddInt64(&limited, 1)
				default:
					if status > 0 {
						log.Printf("Worker %d: unexpected status %d\n", id, status)
					}
					atomic.AddInt64(&failed, 1)
				}
			}
		}(w)
	}

	for j := 0; j < numRequests; j++ {
		jobs <- j
	}
	close(jobs)
	wg.Wait()

	duration := time.Since(startTime)

	fmt.Println("Load Test Results:")
	fmt.Println("==================")
	fmt.Printf("Total Requests: %d\n", numRequests)
	fmt.Printf("Admitted: %d\n", admitted)
	fmt.Printf("Rate limited (429): %d\n", limited)
	fmt.Printf("Failed: %d\n", failed)
	fmt.Printf("Duration: %v\n", duration)
	fmt.Printf("Requests/sec: %.2f\n", float64(numRequests)/duration.Seconds())
}

var client = &http.Client{Timeout: 10 * time.Second}

// post sends one sms batch and returns the status code, or 0 on a transport error.
func post(baseURL, credential, deviceID string) int {
	payload := map[string]any{
		"data": []map[string]any{{
			"address":   "+15550100",
			"type":      "inbox",
			"body":      "load test",
			"timestamp": time.Now().UnixMilli(),
		}},
	}
	jsonData, _ := json.Marshal(payload)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/data/sms", bytes.NewBuffer(jsonData))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential+":"+deviceID)

	resp, err := client.Do(req)
	if err != nil {
		log.Printf("request error: %v\n", err)
		return 0
	}
	resp.Body.Close()
	return resp.StatusCode
}
