package instance

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Status(t *testing.T) {
	want := `{"valve":{"Phase":1,"SinceMsec":1000},"water_meter":{"EdgesCount":3,"Armed":true,"Leaking":false},"battery":{"Voltage":3.7,"VoltageKnown":true,"Powered":true,"PoweredKnown":true}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/state" && r.Method == "GET" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(want))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if len(status.Valve) == 0 || len(status.WaterMeter) == 0 || len(status.Battery) == 0 {
		t.Fatalf("Status() returned incomplete snapshot: %+v", status)
	}
}

func TestClient_Status_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal error"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Status()
	if err == nil {
		t.Fatal("Status() should fail on server error")
	}
}
