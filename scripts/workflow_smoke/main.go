package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type step struct {
	Name     string
	Status   int
	Expected int
	Duration time.Duration
	Error    error
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type runner struct {
	client *http.Client
	base   string
	steps  []step
}

// Walks one proposal through every approval stage and one through a cancellation
// against a running server, using throwaway accounts for each designation.
func main() {
	var (
		base    string
		timeout time.Duration
	)
	flag.StringVar(&base, "base", "http://localhost:5000/api", "API base URL including prefix")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	r := &runner{client: &http.Client{Timeout: timeout}, base: strings.TrimRight(base, "/")}
	suffix := time.Now().UTC().Format("20060102150405")

	tokens := map[string]string{}
	for _, role := range []string{"chairman", "dean", "vc", "controller"} {
		var auth struct {
			AccessToken string `json:"access_token"`
		}
		r.call("signup "+role, http.MethodPost, "/auth/signup", "", map[string]string{
			"name":        "Smoke " + role,
			"email":       fmt.Sprintf("smoke-%s-%s@example.edu", role, suffix),
			"password":    "smoke-secret",
			"designation": role,
		}, http.StatusCreated, &auth)
		tokens[role] = auth.AccessToken
	}

	approved := r.draft(tokens["chairman"])
	for _, role := range []string{"chairman", "dean", "vc", "controller"} {
		r.call(role+" signs", http.MethodPost, "/proposals/"+approved+"/sign", tokens[role], map[string]string{}, http.StatusOK, nil)
	}
	r.call("dean cannot cancel approved", http.MethodPost, "/proposals/"+approved+"/cancel", tokens["dean"], nil, http.StatusForbidden, nil)

	var link struct {
		URL string `json:"url"`
	}
	r.call("controller requests summary link", http.MethodPost, "/proposals/"+approved+"/summary-link", tokens["controller"], nil, http.StatusOK, &link)
	if link.URL != "" {
		r.download(link.URL)
	}

	cancelled := r.draft(tokens["chairman"])
	r.call("chairman submits second", http.MethodPost, "/proposals/"+cancelled+"/sign", tokens["chairman"], nil, http.StatusOK, nil)
	r.call("vc cannot sign before dean", http.MethodPost, "/proposals/"+cancelled+"/sign", tokens["vc"], nil, http.StatusForbidden, nil)
	r.call("dean cancels", http.MethodPost, "/proposals/"+cancelled+"/cancel", tokens["dean"], nil, http.StatusOK, nil)
	r.call("dean cannot sign cancelled", http.MethodPost, "/proposals/"+cancelled+"/sign", tokens["dean"], nil, http.StatusForbidden, nil)

	failures := r.report()
	if failures > 0 {
		os.Exit(1)
	}
}

func (r *runner) draft(token string) string {
	var created struct {
		ID string `json:"id"`
	}
	r.call("chairman creates draft", http.MethodPost, "/proposals", token, nil, http.StatusCreated, &created)
	if created.ID == "" {
		return "missing"
	}
	r.call("chairman fills content", http.MethodPut, "/proposals/"+created.ID, token, map[string]interface{}{
		"exam":        map[string]string{"degree": "BSc", "level": "1", "semester": "1", "year": "2026"},
		"course":      map[string]string{"name": "CSE", "courseCode": "CSE-101", "courseTitle": "Programming", "examType": "Theory", "credit": "3"},
		"examRelated": []string{"Question moderation"},
	}, http.StatusOK, nil)
	return created.ID
}

func (r *runner) call(name, method, path, token string, body interface{}, expected int, dest interface{}) {
	res := step{Name: name, Expected: expected}
	defer func() { r.steps = append(r.steps, res) }()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			res.Error = err
			return
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, r.base+path, payload)
	if err != nil {
		res.Error = err
		return
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		return
	}
	defer resp.Body.Close()
	res.Status = resp.StatusCode

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		res.Error = fmt.Errorf("decode body: %w", err)
		return
	}
	if env.Error != nil && resp.StatusCode != expected {
		res.Error = fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
		return
	}
	if dest != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dest); err != nil {
			res.Error = fmt.Errorf("decode data: %w", err)
		}
	}
}

func (r *runner) download(url string) {
	res := step{Name: "download summary", Expected: http.StatusOK}
	defer func() { r.steps = append(r.steps, res) }()

	base := r.base
	if idx := strings.Index(base, "://"); idx >= 0 {
		if slash := strings.Index(base[idx+3:], "/"); slash >= 0 {
			base = base[:idx+3+slash]
		}
	}
	start := time.Now()
	resp, err := r.client.Get(base + url)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		return
	}
	defer resp.Body.Close()
	res.Status = resp.StatusCode

	head := make([]byte, 5)
	if _, err := io.ReadFull(resp.Body, head); err != nil || string(head) != "%PDF-" {
		res.Error = errors.New("response is not a PDF document")
	}
}

func (r *runner) report() int {
	fmt.Println("Workflow Smoke Report")
	fmt.Println("=====================")
	failures := 0
	for _, s := range r.steps {
		status := "OK"
		if s.Error != nil || s.Status != s.Expected {
			status = "FAIL"
			failures++
		}
		fmt.Printf("[%s] %s: got %d want %d (%s)\n", status, s.Name, s.Status, s.Expected, s.Duration)
		if s.Error != nil {
			fmt.Printf("  Error: %v\n", s.Error)
		}
	}
	fmt.Printf("Failures: %d/%d\n", failures, len(r.steps))
	if failures > 0 {
		log.Printf("workflow smoke failed")
	}
	return failures
}
