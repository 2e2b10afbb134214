package provider

import (
	"encoding/base64"
	"testing"

	gmail "google.golang.org/api/gmail/v1"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func textPart(mimeType, body string) *gmail.MessagePart {
	return &gmail.MessagePart{
		MimeType: mimeType,
		Body:     &gmail.MessagePartBody{Data: b64(body)},
	}
}

func TestExtractGmailBody(t *testing.T) {
	tests := []struct {
		name string
		part *gmail.MessagePart
		want string
	}{
		{
			name: "plain preferred over html",
			part: &gmail.MessagePart{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					textPart("text/html", "<p>hello</p>"),
					textPart("text/plain", "hello"),
				},
			},
			want: "hello",
		},
		{
			name: "html when no plain part",
			part: &gmail.MessagePart{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					textPart("text/html", "<p>only html</p>"),
				},
			},
			want: "<p>only html</p>",
		},
		{
			name: "nested multipart recursion",
			part: &gmail.MessagePart{
				MimeType: "multipart/mixed",
				Parts: []*gmail.MessagePart{
					{
						MimeType: "multipart/alternative",
						Parts: []*gmail.MessagePart{
							textPart("text/plain", "nested body"),
							textPart("text/html", "<p>nested body</p>"),
						},
					},
					textPart("application/pdf", "binary"),
				},
			},
			want: "nested body",
		},
		{
			name: "single plain part at top level",
			part: textPart("text/plain", "flat body"),
			want: "flat body",
		},
		{
			name: "nil part",
			part: nil,
			want: "",
		},
		{
			name: "missing body data",
			part: &gmail.MessagePart{MimeType: "text/plain"},
			want: "",
		},
		{
			name: "malformed base64 resolves empty",
			part: &gmail.MessagePart{
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: "%%not-base64%%"},
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractGmailBody(tt.part); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
