package db

import (
	"encoding/json"
	"testing"
)

func TestHealthReport_Healthy(t *testing.T) {
	if !(HealthReport{Status: "healthy"}).Healthy() {
		t.Error("expected healthy report")
	}
	if (HealthReport{Status: "unhealthy", Error: "dial tcp: refused"}).Healthy() {
		t.Error("expected unhealthy report")
	}
}

func TestHealthReport_JSON(t *testing.T) {
	report := HealthReport{
		Status: "unhealthy",
		Error:  "timeout",
		Pool:   PoolStats{TotalConns: 4, MaxConns: 20, AcquireDuration: "1.5s"},
	}
	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["status"] != "unhealthy" || got["error"] != "timeout" {
		t.Errorf("unexpected body: %s", data)
	}
	pool, ok := got["pool"].(map[string]interface{})
	if !ok || pool["max_conns"].(float64) != 20 {
		t.Errorf("expected pool stats in body: %s", data)
	}

	data, _ = json.Marshal(HealthReport{Status: "healthy"})
	if !json.Valid(data) {
		t.Fatal("invalid json")
	}
	var healthy map[string]interface{}
	_ = json.Unmarshal(data, &healthy)
	if _, present := healthy["error"]; present {
		t.Error("expected error to be omitted when healthy")
	}
}
