package loadgen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunClassifiesResponses(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v1/media/search"):
			w.WriteHeader(http.StatusTooManyRequests)
		case strings.HasPrefix(r.URL.Path, "/api/v1/media"):
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	res, err := Run(context.Background(), Config{
		BaseURL:     srv.URL,
		Profile:     "browse",
		Duration:    300 * time.Millisecond,
		RPS:         100,
		Concurrency: 3,
		Seed:        7,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.TotalRequests == 0 {
		t.Fatal("expected requests to be sent")
	}
	if res.TotalRequests > hits.Load() {
		t.Fatalf("total=%d exceeds server hits=%d", res.TotalRequests, hits.Load())
	}
	if res.Status2xx+res.Status4xx+res.Status429+res.Status5xx != res.TotalRequests {
		t.Fatalf("status buckets do not add up: %+v", res)
	}
	if res.Status2xx == 0 {
		t.Fatalf("expected some 2xx: %+v", res)
	}
}

func TestRunRejectsUnknownProfile(t *testing.T) {
	if _, err := Run(context.Background(), Config{Profile: "chaos"}); err == nil {
		t.Fatal("expected unknown profile error")
	}
}

func TestPickerIsDeterministicPerSeed(t *testing.T) {
	a := newPicker(callsForProfile("mixed"), 42)
	b := newPicker(callsForProfile("mixed"), 42)
	for i := 0; i < 50; i++ {
		if a.next().path != b.next().path {
			t.Fatalf("sequences diverged at %d", i)
		}
	}
}

func TestSummaryIncludesEveryBucket(t *testing.T) {
	lines := Summary(Result{TotalRequests: 3, Status2xx: 1, Status4xx: 1, Status429: 1})
	if len(lines) != 6 || lines[0] != "total_requests=3" || lines[4] != "status_429=1" {
		t.Fatalf("unexpected summary: %v", lines)
	}
}
