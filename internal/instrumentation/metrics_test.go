package instrumentation

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T, detailed bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"), detailed)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m, reader
}

// counterTotal sums every data point of the named int64 counter.
func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) (int64, []metricdata.DataPoint[int64]) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is %T, want Sum[int64]", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total, sum.DataPoints
		}
	}
	return 0, nil
}

func TestMetrics_Counters(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "POST", "/api/connect-phone", 200, 10*time.Millisecond)
	m.RecordHTTPRequest(ctx, "GET", "", 404, time.Millisecond)
	m.RecordGoogleAPIOperation(ctx, ServiceCalendar, OperationInsert, StatusSuccess, time.Second)
	m.RecordOAuthAuth(ctx, OAuthResultSuccess)
	m.RecordOAuthTokenRefresh(ctx, OAuthResultFailure)
	m.RecordIdentityLink(ctx, LinkResultLinked)
	m.RecordIdentityLink(ctx, LinkResultEmailInUse)
	m.RecordTriggerEvaluation(ctx, TriggerResultNotTriggered)
	m.RecordToolInvocation(ctx, "calendar_read_events", StatusSuccess, "phone:abc", time.Millisecond)

	tests := []struct {
		name string
		want int64
	}{
		{"http_requests_total", 2},
		{"google_api_operations_total", 1},
		{"oauth_auth_total", 1},
		{"oauth_token_refresh_total", 1},
		{"identity_link_total", 2},
		{"trigger_evaluations_total", 1},
		{"mcp_tool_invocations_total", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := counterTotal(t, reader, tt.name)
			if got != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestMetrics_UnmatchedRouteLabel(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	m.RecordHTTPRequest(context.Background(), "GET", "", 404, time.Millisecond)

	_, points := counterTotal(t, reader, "http_requests_total")
	if len(points) != 1 {
		t.Fatalf("got %d data points, want 1", len(points))
	}
	path, ok := points[0].Attributes.Value(attrPath)
	if !ok || path.AsString() != "unmatched" {
		t.Errorf("path label = %v, want unmatched", path.AsString())
	}
}

func TestMetrics_DetailedLabels(t *testing.T) {
	tests := []struct {
		name     string
		detailed bool
		wantUser bool
	}{
		{"disabled", false, false},
		{"enabled", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, reader := newTestMetrics(t, tt.detailed)
			m.RecordToolInvocation(context.Background(), "calendar_create_event", StatusSuccess, "phone:abc", time.Millisecond)

			_, points := counterTotal(t, reader, "mcp_tool_invocations_total")
			if len(points) != 1 {
				t.Fatalf("got %d data points, want 1", len(points))
			}
			_, hasUser := points[0].Attributes.Value(attrUser)
			if hasUser != tt.wantUser {
				t.Errorf("user label present = %v, want %v", hasUser, tt.wantUser)
			}
		})
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	ctx := context.Background()
	for _, m := range []*Metrics{nil, {}} {
		m.RecordHTTPRequest(ctx, "GET", "/", 200, time.Millisecond)
		m.RecordGoogleAPIOperation(ctx, ServiceOAuth, OperationRefresh, StatusError, time.Millisecond)
		m.RecordOAuthAuth(ctx, OAuthResultSuccess)
		m.RecordOAuthTokenRefresh(ctx, OAuthResultReauth)
		m.RecordIdentityLink(ctx, LinkResultConflict)
		m.RecordTriggerEvaluation(ctx, TriggerResultTriggered)
		m.RecordToolInvocation(ctx, "x", StatusSuccess, "", time.Millisecond)
	}
}

func TestRouteLabel(t *testing.T) {
	if got := RouteLabel("/api/temp/:id"); got != "/api/temp/:id" {
		t.Errorf("RouteLabel() = %q", got)
	}
	if got := RouteLabel("  "); got != "unmatched" {
		t.Errorf("RouteLabel(blank) = %q", got)
	}
}
