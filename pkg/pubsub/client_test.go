package pubsub

import (
	"context"
	"testing"

	"github.com/sanctuarypay/tithe-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		project, kind, name, want string
	}{
		{"tithe-prod", "topics", "intent-events", "projects/tithe-prod/topics/intent-events"},
		{"tithe-prod", "subscriptions", " analytics ", "projects/tithe-prod/subscriptions/analytics"},
		{"tithe-prod", "topics", "projects/other/topics/intent-events", "projects/other/topics/intent-events"},
		{"", "topics", "intent-events", ""},
		{"tithe-prod", "topics", "", ""},
	}
	for _, tc := range cases {
		if got := ResourceName(tc.project, tc.kind, tc.name); got != tc.want {
			t.Fatalf("ResourceName(%q,%q,%q) = %q, want %q", tc.project, tc.kind, tc.name, got, tc.want)
		}
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.PubSubConfig{IntentEventsTopic: "t"}, nil); err != errProjectIDRequired {
		t.Fatalf("expected project id error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil); err != errTopicRequired {
		t.Fatalf("expected topic error, got %v", err)
	}
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	if c.Publisher("intent-events") != nil {
		t.Fatalf("expected nil publisher")
	}
	if c.Subscription("analytics") != nil {
		t.Fatalf("expected nil subscriber")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error")
	}
}
