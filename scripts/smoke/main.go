// Command smoke drives a running API through a scripted day-by-day scenario
// and verifies the classified state for each synced day. It registers a fresh
// user, creates a pet and replays the scenario file against it, exiting
// non-zero when any critical expectation fails.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type day struct {
	Date       string   `json:"date"`
	Steps      int      `json:"steps"`
	SleepHours *float64 `json:"sleep_hours,omitempty"`
	HRV        *float64 `json:"hrv,omitempty"`
	WantState  string   `json:"want_state"`
	Critical   bool     `json:"critical"`
}

type scenario struct {
	PetName string `json:"pet_name"`
	Days    []day  `json:"days"`
}

type result struct {
	Day      day
	GotState string
	Status   int
	Err      error
}

func main() {
	var (
		base         string
		scenarioPath string
		timeout      time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&scenarioPath, "scenario", filepath.Join("scripts", "smoke", "scenario.json"), "Path to JSON scenario file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	sc, err := loadScenario(scenarioPath)
	if err != nil {
		log.Fatalf("failed to load scenario: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	session, err := newSession(client, base, sc.PetName)
	if err != nil {
		log.Fatalf("failed to set up session: %v", err)
	}

	var (
		results  []result
		breaking int
		optional int
	)
	for _, d := range sc.Days {
		res := session.syncDay(d)
		if res.Err != nil || !strings.EqualFold(res.GotState, d.WantState) {
			if d.Critical {
				breaking++
			} else {
				optional++
			}
		}
		results = append(results, res)
	}

	printReport(results)
	fmt.Printf("Breaking mismatches: %d, Optional mismatches: %d\n", breaking, optional)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadScenario(path string) (*scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if len(sc.Days) == 0 {
		return nil, fmt.Errorf("no days defined in %s", path)
	}
	if sc.PetName == "" {
		sc.PetName = "Smoke"
	}
	return &sc, nil
}

type session struct {
	client *http.Client
	base   string
	token  string
	petID  string
}

// newSession registers a throwaway user and creates the scenario pet. The
// email is timestamped so repeated runs against the same database do not
// collide.
func newSession(client *http.Client, base, petName string) (*session, error) {
	s := &session{client: client, base: strings.TrimRight(base, "/")}

	email := fmt.Sprintf("smoke-%d@example.com", time.Now().UnixNano())
	password := "smoke-test-pass-1"
	regBody := map[string]string{"email": email, "password": password, "display_name": "Smoke Runner"}
	if err := s.post("/auth/register", regBody, nil); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	var loginResp struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := s.post("/auth/login", map[string]string{"email": email, "password": password}, &loginResp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	s.token = loginResp.Data.AccessToken

	var petResp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := s.post("/pets", map[string]string{"name": petName}, &petResp); err != nil {
		return nil, fmt.Errorf("create pet: %w", err)
	}
	s.petID = petResp.Data.ID
	return s, nil
}

func (s *session) syncDay(d day) result {
	res := result{Day: d}
	payload := map[string]interface{}{"date": d.Date, "steps": d.Steps}
	if d.SleepHours != nil {
		payload["sleep_hours"] = *d.SleepHours
	}
	if d.HRV != nil {
		payload["hrv"] = *d.HRV
	}

	var resp struct {
		Data struct {
			State string `json:"state"`
		} `json:"data"`
	}
	status, err := s.do(http.MethodPost, "/pets/"+s.petID+"/health", payload, &resp)
	res.Status = status
	res.Err = err
	res.GotState = resp.Data.State
	return res
}

func (s *session) post(path string, body, out interface{}) error {
	status, err := s.do(http.MethodPost, path, body, out)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("unexpected status %d for %s", status, path)
	}
	return nil
}

func (s *session) do(method, path string, body, out interface{}) (int, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(method, s.base+path, bytes.NewReader(encoded))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func printReport(results []result) {
	fmt.Println("Smoke Report")
	fmt.Println("============")
	for _, res := range results {
		status := "OK"
		if res.Err != nil {
			status = "ERROR"
		} else if !strings.EqualFold(res.GotState, res.Day.WantState) {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s steps=%d\n", status, res.Day.Date, res.Day.Steps)
		if res.Err != nil {
			fmt.Printf("  Error: %v\n", res.Err)
			continue
		}
		fmt.Printf("  Want: %s | Got: %s | Critical: %t\n", res.Day.WantState, res.GotState, res.Day.Critical)
	}
}
