package loadgen

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mediagallery/gallery-api/internal/observability"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
	Client      *http.Client
}

type Result struct {
	TotalRequests int64
	Failures      int64
	Status2xx     int64
	Status4xx     int64
	Status429     int64
	Status5xx     int64
}

// call is one request template in a traffic profile. weight biases the random
// pick toward the hot paths.
type call struct {
	method string
	path   string
	body   string
	weight int
}

var (
	browseCalls = []call{
		{http.MethodGet, "/api/v1/media?page=1&limit=12", "", 6},
		{http.MethodGet, "/api/v1/media/search?q=sunset", "", 3},
		{http.MethodGet, "/api/v1/media?category=landscape&sort=popular", "", 2},
		{http.MethodGet, "/health/live", "", 1},
	}
	authCalls = []call{
		{http.MethodPost, "/api/v1/auth/login", `{"email":"loadgen@example.com","password":"wrong-password"}`, 4},
		{http.MethodGet, "/api/v1/auth/me", "", 3},
		{http.MethodPost, "/api/v1/auth/forgot-password", `{"email":"loadgen@example.com"}`, 1},
		{http.MethodGet, "/api/v1/auth/google/login", "", 1},
	}
	errorCalls = []call{
		{http.MethodGet, "/api/v1/media/999999999", "", 3},
		{http.MethodPost, "/api/v1/auth/register", `{"name":"x","email":"bad","password":"1"}`, 2},
		{http.MethodGet, "/api/v1/users/profile", "", 2},
		{http.MethodPost, "/api/v1/contact", `{}`, 1},
	}
)

func callsForProfile(profile string) []call {
	switch strings.ToLower(profile) {
	case "", "mixed":
		mixed := make([]call, 0, len(browseCalls)+len(authCalls)+len(errorCalls))
		mixed = append(mixed, browseCalls...)
		mixed = append(mixed, authCalls...)
		return append(mixed, errorCalls...)
	case "browse":
		return browseCalls
	case "auth":
		return authCalls
	case "error-heavy":
		return errorCalls
	default:
		return nil
	}
}

type picker struct {
	calls []call
	total int
	rng   *rand.Rand
}

func newPicker(calls []call, seed int64) *picker {
	total := 0
	for _, c := range calls {
		total += c.weight
	}
	return &picker{calls: calls, total: total, rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))}
}

func (p *picker) next() call {
	n := p.rng.IntN(p.total)
	for _, c := range p.calls {
		if n < c.weight {
			return c
		}
		n -= c.weight
	}
	return p.calls[len(p.calls)-1]
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	calls := callsForProfile(cfg.Profile)
	if len(calls) == 0 {
		return Result{}, fmt.Errorf("unknown profile: %s", cfg.Profile)
	}
	profile := strings.ToLower(cfg.Profile)
	if profile == "" {
		profile = "mixed"
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var total, failures, s2xx, s4xx, s429, s5xx atomic.Int64
	jobs := make(chan call, cfg.Concurrency*2)
	g, gctx := errgroup.WithContext(ctx)

	for range cfg.Concurrency {
		g.Go(func() error {
			for c := range jobs {
				class := send(gctx, client, baseURL, c)
				observability.RecordLoadgenRequest(gctx, class, profile)
				if class == "error" {
					failures.Add(1)
					continue
				}
				total.Add(1)
				switch class {
				case "2xx":
					s2xx.Add(1)
				case "429":
					s429.Add(1)
				case "4xx":
					s4xx.Add(1)
				case "5xx":
					s5xx.Add(1)
				}
			}
			return nil
		})
	}

	p := newPicker(calls, cfg.Seed)
	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()
produce:
	for {
		select {
		case <-ctx.Done():
			break produce
		case <-ticker.C:
			select {
			case jobs <- p.next():
			case <-ctx.Done():
				break produce
			}
		}
	}
	close(jobs)
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return Result{
		TotalRequests: total.Load(),
		Failures:      failures.Load(),
		Status2xx:     s2xx.Load(),
		Status4xx:     s4xx.Load(),
		Status429:     s429.Load(),
		Status5xx:     s5xx.Load(),
	}, nil
}

// send performs one request and classifies the outcome for metrics.
func send(ctx context.Context, client *http.Client, baseURL string, c call) string {
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, baseURL+c.path, body)
	if err != nil {
		return "error"
	}
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return "error"
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "429"
	case resp.StatusCode >= 500:
		return "5xx"
	case resp.StatusCode >= 400:
		return "4xx"
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return "2xx"
	default:
		return "other"
	}
}
