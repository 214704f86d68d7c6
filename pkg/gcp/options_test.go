package gcp

import (
	"testing"

	"github.com/sanctuarypay/tithe-backend/pkg/config"
)

func TestClientOptions(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.GCPConfig
		want int
	}{
		{"json wins", config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/creds.json"}, 1},
		{"file", config.GCPConfig{ApplicationCredentials: "/tmp/creds.json"}, 1},
		{"default credentials", config.GCPConfig{}, 0},
		{"blank json ignored", config.GCPConfig{CredentialsJSON: "  "}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := len(ClientOptions(tc.cfg)); got != tc.want {
				t.Fatalf("expected %d options, got %d", tc.want, got)
			}
		})
	}
}
