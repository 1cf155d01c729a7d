package discord

import "testing"

func TestRedactURL(t *testing.T) {
	tests := map[string]string{
		"https://discord.com/api/webhooks/123/secret-token":     "https://discord.com/api/webhooks/123/***",
		"https://discord.com/api/webhooks/123/secret?wait=true": "https://discord.com/api/webhooks/123/***",
		"https://discord.com/api/webhooks/123":                  "https://discord.com/api/webhooks/123",
		"::not a url":                                           "invalid-webhook-url",
	}
	for in, want := range tests {
		if got := RedactURL(in); got != want {
			t.Errorf("RedactURL(%q)=%q, want %q", in, got, want)
		}
	}
}
