package obscheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mediagallery/gallery-api/internal/tools/common"
	"github.com/mediagallery/gallery-api/internal/tools/loadgen"
)

type options struct {
	grafanaURL      string
	grafanaUser     string
	grafanaPassword string
	serviceName     string
	exemplarMetric  string
	promDatasource  int
	lokiDatasource  int
	tempoDatasource int
	window          time.Duration
	settle          time.Duration
	ci              bool
	baseURL         string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "obscheck",
		Short:         "Verify the gallery API's metric, trace and log correlation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := cmd.PersistentFlags()
	f.StringVar(&opts.grafanaURL, "grafana-url", "http://localhost:3000", "Grafana base URL")
	f.StringVar(&opts.grafanaUser, "grafana-user", "admin", "Grafana username")
	f.StringVar(&opts.grafanaPassword, "grafana-password", "admin", "Grafana password")
	f.StringVar(&opts.serviceName, "service-name", "gallery-api", "OTel service name")
	f.StringVar(&opts.exemplarMetric, "exemplar-metric", "media_operation_duration_seconds_bucket", "histogram queried for trace exemplars")
	f.IntVar(&opts.promDatasource, "prometheus-datasource", 1, "Grafana datasource id for Prometheus")
	f.IntVar(&opts.lokiDatasource, "loki-datasource", 2, "Grafana datasource id for Loki")
	f.IntVar(&opts.tempoDatasource, "tempo-datasource", 3, "Grafana datasource id for Tempo")
	f.DurationVar(&opts.window, "window", 20*time.Minute, "query lookback window")
	f.DurationVar(&opts.settle, "settle", 8*time.Second, "wait after traffic for telemetry export")
	f.BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	f.StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL for traffic")
	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Generate traffic and follow an exemplar to its trace and logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			inv := common.Invocation{Tool: "obscheck", Command: "run", CI: opts.ci, Timeout: 3 * time.Minute, Out: cmd.OutOrStdout()}
			return inv.Run(func(ctx context.Context) ([]string, error) {
				return check(ctx, *opts)
			})
		},
	}
}

func check(ctx context.Context, opts options) ([]string, error) {
	res, err := loadgen.Run(ctx, loadgen.Config{
		BaseURL:     opts.baseURL,
		Profile:     "browse",
		Duration:    6 * time.Second,
		RPS:         20,
		Concurrency: 6,
		Seed:        42,
	})
	if err != nil {
		return nil, err
	}
	details := []string{fmt.Sprintf("traffic generated total=%d transport_failures=%d", res.TotalRequests, res.Failures)}

	select {
	case <-time.After(opts.settle):
	case <-ctx.Done():
		return details, ctx.Err()
	}

	g := grafana{opts: opts, client: &http.Client{Timeout: 20 * time.Second}}
	traceID, err := g.exemplarTraceID(ctx)
	if err != nil {
		return details, err
	}
	details = append(details, "exemplar trace_id="+traceID)

	if err := g.traceExists(ctx, traceID); err != nil {
		return details, err
	}
	details = append(details, "tempo trace lookup: ok")

	if err := g.logsCorrelated(ctx, traceID); err != nil {
		return details, err
	}
	return append(details, "loki trace correlation: ok"), nil
}

type grafana struct {
	opts   options
	client *http.Client
}

func (g grafana) get(ctx context.Context, path string, query url.Values, out any) error {
	u, err := url.Parse(g.opts.grafanaURL)
	if err != nil {
		return err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.opts.grafanaUser, g.opts.grafanaPassword)
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("grafana %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type exemplarResponse struct {
	Data []struct {
		Exemplars []struct {
			Labels map[string]string `json:"labels"`
		} `json:"exemplars"`
	} `json:"data"`
}

func (r exemplarResponse) firstTraceID() (string, bool) {
	for _, series := range r.Data {
		for _, e := range series.Exemplars {
			if tid := e.Labels["trace_id"]; len(tid) == 32 {
				return tid, true
			}
		}
	}
	return "", false
}

func (g grafana) exemplarTraceID(ctx context.Context) (string, error) {
	now := time.Now()
	q := url.Values{}
	q.Set("query", g.opts.exemplarMetric)
	q.Set("start", fmt.Sprint(now.Add(-g.opts.window).Unix()))
	q.Set("end", fmt.Sprint(now.Unix()))
	var payload exemplarResponse
	if err := g.get(ctx, fmt.Sprintf("/api/datasources/proxy/%d/api/v1/query_exemplars", g.opts.promDatasource), q, &payload); err != nil {
		return "", err
	}
	tid, ok := payload.firstTraceID()
	if !ok {
		return "", fmt.Errorf("no trace_id exemplar found on %s", g.opts.exemplarMetric)
	}
	return tid, nil
}

func (g grafana) traceExists(ctx context.Context, traceID string) error {
	var payload struct {
		Batches []json.RawMessage `json:"batches"`
	}
	if err := g.get(ctx, fmt.Sprintf("/api/datasources/proxy/%d/api/traces/%s", g.opts.tempoDatasource, traceID), nil, &payload); err != nil {
		return err
	}
	if len(payload.Batches) == 0 {
		return fmt.Errorf("tempo trace %s has no batches", traceID)
	}
	return nil
}

func (g grafana) logsCorrelated(ctx context.Context, traceID string) error {
	now := time.Now()
	q := url.Values{}
	q.Set("query", fmt.Sprintf("{service_name=%q} |= %q", g.opts.serviceName, traceID))
	q.Set("start", fmt.Sprint(now.Add(-g.opts.window).UnixNano()))
	q.Set("end", fmt.Sprint(now.UnixNano()))
	q.Set("limit", "1")
	q.Set("direction", "backward")
	var payload struct {
		Data struct {
			Result []json.RawMessage `json:"result"`
		} `json:"data"`
	}
	if err := g.get(ctx, fmt.Sprintf("/api/datasources/proxy/%d/loki/api/v1/query_range", g.opts.lokiDatasource), q, &payload); err != nil {
		return err
	}
	if len(payload.Data.Result) == 0 {
		return fmt.Errorf("no correlated loki logs found for trace_id %s", traceID)
	}
	return nil
}
