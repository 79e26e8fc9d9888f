package payment

import "testing"

func TestIsMintWhitelisted(t *testing.T) {
	whitelist := []string{"https://mint.example.com/", "https://other.example.com"}

	tests := []struct {
		name string
		mint string
		want bool
	}{
		{name: "exact match", mint: "https://mint.example.com", want: true},
		{name: "trailing slash on input", mint: "https://mint.example.com/", want: true},
		{name: "case insensitive", mint: "HTTPS://MINT.EXAMPLE.COM", want: true},
		{name: "prefix match for versioned path", mint: "https://mint.example.com/v1", want: true},
		{name: "not whitelisted", mint: "https://evil.example.com", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMintWhitelisted(tt.mint, whitelist); got != tt.want {
				t.Errorf("IsMintWhitelisted(%q) = %v, want %v", tt.mint, got, tt.want)
			}
		})
	}
}
