package broker

import "testing"

func TestBlanketKindFilter(t *testing.T) {
	tests := []struct {
		name   string
		method string
		want   string
	}{
		{name: "sign_event always grants all kinds", method: "sign_event", want: "all"},
		{name: "connect has no kind filter", method: "connect", want: ""},
		{name: "nip04_encrypt has no kind filter", method: "nip04_encrypt", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := blanketKindFilter(tt.method); got != tt.want {
				t.Errorf("blanketKindFilter(%q) = %q, want %q", tt.method, got, tt.want)
			}
		})
	}
}
