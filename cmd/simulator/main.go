package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// BookingRequest is the body of POST /api/reservations.
type BookingRequest struct {
	CarID     string    `json:"car_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Purpose   string    `json:"purpose,omitempty"`
}

// Summary counts how the API answered a burst of competing bookings.
type Summary struct {
	Admitted  int
	Conflicts int
	Rejected  int
	Errors    int
}

var authToken string

func authorizedPost(url string, contentType string, body *bytes.Buffer) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

// randomWindow returns a window of length d starting within spread of base,
// on a 15 minute grid so that bursts overlap heavily.
func randomWindow(base time.Time, spread, d time.Duration) (time.Time, time.Time) {
	slots := int(spread / (15 * time.Minute))
	start := base
	if slots > 0 {
		start = base.Add(time.Duration(rand.Intn(slots)) * 15 * time.Minute)
	}
	return start, start.Add(d)
}

func book(apiURL string, booking BookingRequest) (int, error) {
	data, err := json.Marshal(booking)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal booking: %w", err)
	}
	resp, err := authorizedPost(apiURL+"/reservations", "application/json", bytes.NewBuffer(data))
	if err != nil {
		return 0, fmt.Errorf("failed to send booking: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	log.WithFields(log.Fields{
		"car_id":         booking.CarID,
		"start":          booking.StartDate.Format(time.RFC3339),
		"end":            booking.EndDate.Format(time.RFC3339),
		"status":         resp.StatusCode,
		"reservation_id": body.ID,
		"code":           body.Code,
	}).Debug("Booking answered")
	return resp.StatusCode, nil
}

// runBurst fires n concurrent bookings for carID and tallies the answers.
func runBurst(apiURL, carID string, n int, base time.Time, spread, length time.Duration) Summary {
	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		start, end := randomWindow(base, spread, length)
		booking := BookingRequest{CarID: carID, StartDate: start, EndDate: end, Purpose: fmt.Sprintf("simulated booking %d", i+1)}

		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := book(apiURL, booking)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				log.WithError(err).Error("Booking failed")
				summary.Errors++
			case status == http.StatusCreated:
				summary.Admitted++
			case status == http.StatusConflict:
				summary.Conflicts++
			case status >= 500:
				summary.Errors++
			default:
				summary.Rejected++
			}
		}()
	}
	wg.Wait()
	return summary
}

func envInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 1 {
			return n
		}
	}
	return fallback
}

func main() {
	authToken = os.Getenv("SIM_AUTH_TOKEN")

	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}
	carID := os.Getenv("SIM_CAR_ID")
	if carID == "" {
		carID = "car-1"
	}
	requests := envInt("SIM_REQUESTS", 20)
	spread := time.Duration(envInt("SIM_SPREAD_HOURS", 8)) * time.Hour
	length := time.Duration(envInt("SIM_LENGTH_HOURS", 2)) * time.Hour

	base := time.Now().UTC().Add(24 * time.Hour).Truncate(24 * time.Hour).Add(8 * time.Hour)

	log.WithFields(log.Fields{
		"api_url":  apiURL,
		"car_id":   carID,
		"requests": requests,
		"base":     base.Format(time.RFC3339),
	}).Info("Starting booking contention simulation")

	began := time.Now()
	summary := runBurst(apiURL, carID, requests, base, spread, length)

	log.WithFields(log.Fields{
		"admitted":  summary.Admitted,
		"conflicts": summary.Conflicts,
		"rejected":  summary.Rejected,
		"errors":    summary.Errors,
		"elapsed":   time.Since(began),
	}).Info("Simulation finished")

	if summary.Errors > 0 {
		os.Exit(1)
	}
}
