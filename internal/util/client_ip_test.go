package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xfwd       string
		realIP     string
		want       string
	}{
		{name: "remote addr only", remoteAddr: "203.0.113.7:51234", want: "203.0.113.7"},
		{name: "x-forwarded-for wins", remoteAddr: "10.0.0.1:80", xfwd: "203.0.113.7", want: "203.0.113.7"},
		{name: "first forwarded entry", remoteAddr: "10.0.0.1:80", xfwd: "203.0.113.7, 10.0.0.2, 10.0.0.3", want: "203.0.113.7"},
		{name: "x-real-ip fallback", remoteAddr: "10.0.0.1:80", realIP: "203.0.113.9", want: "203.0.113.9"},
		{name: "forwarded beats real-ip", remoteAddr: "10.0.0.1:80", xfwd: "203.0.113.7", realIP: "203.0.113.9", want: "203.0.113.7"},
		{name: "remote addr without port", remoteAddr: "203.0.113.7", want: "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xfwd != "" {
				r.Header.Set("X-Forwarded-For", tt.xfwd)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
