package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCollectorClassifiesCodes(t *testing.T) {
	c := newCollector()
	c.record(scenarioMethod, 10*time.Millisecond, codes.OK)
	c.record(scenarioMethod, 12*time.Millisecond, codes.FailedPrecondition)
	c.record(scenarioMethod, 20*time.Millisecond, codes.Internal)
	c.record("CreateOrder", 15*time.Millisecond, codes.OK)

	snap, ok := c.snapshot(scenarioMethod)
	if !ok {
		t.Fatalf("scenario snapshot missing")
	}
	if snap.Calls != 3 || snap.Success != 1 || snap.Rejected != 1 || snap.Failed != 1 {
		t.Fatalf("unexpected scenario snapshot: %+v", snap)
	}
	if snap.Codes[codes.FailedPrecondition.String()] != 1 || snap.Codes[codes.Internal.String()] != 1 {
		t.Fatalf("unexpected codes: %+v", snap.Codes)
	}

	r := c.buildReport(time.Now(), 2*time.Second)
	if r.TotalScenarios != 3 || r.RejectedScenarios != 1 || r.FailedScenarios != 1 {
		t.Fatalf("unexpected report totals: %+v", r)
	}
	if r.RPS != 1.5 {
		t.Fatalf("unexpected rps: %f", r.RPS)
	}
	if _, ok := r.Methods["CreateOrder"]; !ok {
		t.Fatalf("expected CreateOrder stats in report")
	}
	if _, ok := c.snapshot("CancelOrder"); ok {
		t.Fatalf("unexpected CancelOrder snapshot")
	}
}

func TestUtilityFunctions(t *testing.T) {
	if got := grpcCode(nil); got != codes.OK {
		t.Fatalf("grpcCode(nil) = %s, want OK", got)
	}
	if got := grpcCode(status.Error(codes.Unavailable, "down")); got != codes.Unavailable {
		t.Fatalf("unexpected grpc code: %s", got)
	}

	if got := ratio(1, 4); got != 0.25 {
		t.Fatalf("ratio mismatch: %f", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("ratio with zero total must be 0, got %f", got)
	}

	values := []float64{10, 20, 30, 40}
	summary := buildLatencySummary(values)
	if summary.Min != 10 || summary.Max != 40 || summary.Avg != 25 {
		t.Fatalf("unexpected latency summary: %+v", summary)
	}
	if summary.P50 <= 0 || summary.P95 < summary.P50 {
		t.Fatalf("unexpected percentiles: %+v", summary)
	}
	if empty := buildLatencySummary(nil); empty != (latencySummary{}) {
		t.Fatalf("expected zero summary, got %+v", empty)
	}

	if got := runTarget(config{total: 50}); got != "count:50" {
		t.Fatalf("unexpected run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second}); got != "duration:2s" {
		t.Fatalf("unexpected duration run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}); got != "duration:2s,max-total:10" {
		t.Fatalf("unexpected capped duration run target: %s", got)
	}
}

func TestWriteJSONReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	sample := report{
		TotalScenarios:   2,
		SuccessScenarios: 2,
		Stock:            &stockCheck{ProductID: "p-1", Initial: 5, Final: 3, Expected: 3, Consistent: true},
	}
	if err := writeJSONReport(path, sample); err != nil {
		t.Fatalf("writeJSONReport error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 2 || decoded.Stock == nil || !decoded.Stock.Consistent {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}
}

func TestPrintReport(t *testing.T) {
	result := report{
		TotalScenarios:    4,
		SuccessScenarios:  3,
		RejectedScenarios: 1,
		Methods: map[string]methodReport{
			scenarioMethod: {Calls: 4},
			"CreateOrder":  {Calls: 4, Success: 3, Rejected: 1},
		},
		Stock: &stockCheck{ProductID: "p-1", Initial: 3, Final: 0, Expected: 0, Consistent: true},
	}

	var buf bytes.Buffer
	printReport(&buf, result, config{mode: modeCreate, total: 4})
	out := buf.String()

	for _, want := range []string{
		"mode=create run=count:4 total=4 success=3 rejected=1 failed=0",
		"CreateOrder: calls=4 success=3 rejected=1 failed=0",
		"stock product=p-1 initial=3 final=0 expected=0 consistent=true",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, scenarioMethod+": calls") {
		t.Fatalf("scenario method must not be listed per method:\n%s", out)
	}
}
