package security

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheck_TLSServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	cs := Check(context.Background(), srv.URL+"/api/v1", true)
	if cs == nil {
		t.Fatal("Check returned nil for https endpoint")
	}
	if cs.Status != StatusValid {
		t.Errorf("Status = %q, want valid", cs.Status)
	}
	if cs.DaysLeft <= expiringWithin || cs.NotAfter == "" {
		t.Errorf("cert = %+v", cs)
	}
	if cs.Endpoint != srv.URL {
		t.Errorf("Endpoint = %q, want %q (path stripped)", cs.Endpoint, srv.URL)
	}
}

func TestCheck_UntrustedWithoutSkip(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	if cs := Check(context.Background(), srv.URL, false); cs == nil || cs.Status != StatusUnreachable {
		t.Errorf("self-signed cert without skip = %+v, want unreachable", cs)
	}
}

func TestCheck_PlainHTTP(t *testing.T) {
	if cs := Check(context.Background(), "http://analytics.local", false); cs != nil {
		t.Errorf("Check(http) = %+v, want nil", cs)
	}
}

func TestCheck_Unreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()

	cs := Check(context.Background(), "https://"+addr, true)
	if cs == nil || cs.Status != StatusUnreachable {
		t.Errorf("Check(closed port) = %+v, want unreachable", cs)
	}
}

func TestClassify(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		notAfter time.Time
		days     int
		status   string
	}{
		{now.AddDate(1, 0, 0), 365, StatusValid},
		{now.AddDate(0, 0, 31), 31, StatusValid},
		{now.AddDate(0, 0, 30), 30, StatusExpiring},
		{now.Add(12 * time.Hour), 0, StatusExpiring},
		{now, 0, StatusExpired},
		{now.AddDate(0, 0, -3), -3, StatusExpired},
	}
	for _, tc := range tests {
		days, status := classify(tc.notAfter, now)
		if days != tc.days || status != tc.status {
			t.Errorf("classify(%v) = (%d, %s), want (%d, %s)", tc.notAfter, days, status, tc.days, tc.status)
		}
	}
}
