package provider

import (
	"testing"
	"time"

	"sync_server/core/domain"
)

func msgAt(id, from string, sent bool, at time.Time) domain.Message {
	return domain.Message{ID: id, From: from, IsSent: sent, ReceivedAt: at}
}

func TestSelectReceived(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		msgs  []domain.Message
		owner string
		want  string // expected message id, "" for nil
	}{
		{
			name: "most recent received wins",
			msgs: []domain.Message{
				msgAt("m1", "alice@example.com", false, base),
				msgAt("m2", "bob@example.com", false, base.Add(time.Hour)),
				msgAt("m3", "carol@example.com", false, base.Add(30*time.Minute)),
			},
			owner: "me@example.com",
			want:  "m2",
		},
		{
			name: "sent flag excludes",
			msgs: []domain.Message{
				msgAt("m1", "alice@example.com", false, base),
				msgAt("m2", "me@example.com", true, base.Add(time.Hour)),
			},
			owner: "me@example.com",
			want:  "m1",
		},
		{
			name: "owner address in from header excludes",
			msgs: []domain.Message{
				msgAt("m1", "alice@example.com", false, base),
				msgAt("m2", "Me Myself <me@example.com>", false, base.Add(time.Hour)),
			},
			owner: "me@example.com",
			want:  "m1",
		},
		{
			name: "owner match is case-insensitive",
			msgs: []domain.Message{
				msgAt("m1", "ME@EXAMPLE.COM", false, base.Add(time.Hour)),
				msgAt("m2", "alice@example.com", false, base),
			},
			owner: "me@example.com",
			want:  "m2",
		},
		{
			name: "all self-authored drops the thread",
			msgs: []domain.Message{
				msgAt("m1", "me@example.com", false, base),
				msgAt("m2", "me@example.com", true, base.Add(time.Hour)),
			},
			owner: "me@example.com",
			want:  "",
		},
		{
			name:  "empty thread",
			msgs:  nil,
			owner: "me@example.com",
			want:  "",
		},
		{
			name: "empty owner only honors the sent flag",
			msgs: []domain.Message{
				msgAt("m1", "me@example.com", false, base.Add(time.Hour)),
				msgAt("m2", "alice@example.com", false, base),
			},
			owner: "",
			want:  "m1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectReceived(tt.msgs, tt.owner)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("expected nil, got %q", got.ID)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %q, got nil", tt.want)
			}
			if got.ID != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got.ID)
			}
		})
	}
}

// Known heuristic: an owner address that is a substring of another sender's
// address also excludes that sender.
func TestSelectReceived_SubstringOwnerMisfire(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []domain.Message{
		msgAt("m1", "bo@example.com.iamnotbo@evil.test", false, base.Add(time.Hour)),
		msgAt("m2", "alice@example.com", false, base),
	}

	got := SelectReceived(msgs, "bo@example.com")
	if got == nil || got.ID != "m2" {
		t.Fatalf("expected substring match to exclude m1, got %+v", got)
	}
}
