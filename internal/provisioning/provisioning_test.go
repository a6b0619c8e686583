package provisioning

import (
	"strings"
	"testing"
)

func TestSelectDomain(t *testing.T) {
	p := &Provisioner{domains: []string{"bunker.test", "alt.test"}}

	tests := []struct {
		name    string
		want    string
		wantErr bool
		got     string
	}{
		{name: "", want: "bunker.test"},
		{name: "alt.test", want: "alt.test"},
		{name: "unknown.test", wantErr: true},
	}

	for _, tt := range tests {
		got, err := p.selectDomain(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("selectDomain(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("selectDomain(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSelectDomain_NoneConfigured(t *testing.T) {
	p := &Provisioner{}
	if _, err := p.selectDomain(""); err == nil {
		t.Fatal("expected an error with no domains configured")
	}
}

func TestRandomBase36(t *testing.T) {
	s, err := randomBase36(10)
	if err != nil {
		t.Fatalf("randomBase36() error: %v", err)
	}
	if len(s) != 10 {
		t.Fatalf("len(randomBase36(10)) = %d, want 10", len(s))
	}
	if strings.Trim(s, base36Alphabet) != "" {
		t.Errorf("randomBase36() = %q, contains characters outside %q", s, base36Alphabet)
	}
}

func TestRandomBase36_Unique(t *testing.T) {
	a, err := randomBase36(16)
	if err != nil {
		t.Fatalf("randomBase36() error: %v", err)
	}
	b, err := randomBase36(16)
	if err != nil {
		t.Fatalf("randomBase36() error: %v", err)
	}
	if a == b {
		t.Fatal("two calls to randomBase36() produced the same string")
	}
}

func TestDirectoryRoundTrip(t *testing.T) {
	p := &Provisioner{directoryDir: t.TempDir(), relays: []string{"wss://relay.test"}}

	free, err := p.isNameFree("bunker.test", "alice")
	if err != nil {
		t.Fatalf("isNameFree() error: %v", err)
	}
	if !free {
		t.Fatal("expected alice to be free in an empty directory")
	}

	if err := p.appendDirectoryEntry("bunker.test", "alice", "deadbeef"); err != nil {
		t.Fatalf("appendDirectoryEntry() error: %v", err)
	}

	free, err = p.isNameFree("bunker.test", "alice")
	if err != nil {
		t.Fatalf("isNameFree() error: %v", err)
	}
	if free {
		t.Fatal("expected alice to be taken after appendDirectoryEntry")
	}

	dir, err := p.loadDirectory("bunker.test")
	if err != nil {
		t.Fatalf("loadDirectory() error: %v", err)
	}
	entry, ok := dir["alice"]
	if !ok {
		t.Fatal("expected an entry for alice")
	}
	if entry.Pubkey != "deadbeef" {
		t.Errorf("entry.Pubkey = %q, want %q", entry.Pubkey, "deadbeef")
	}
	if len(entry.Relays) != 1 || entry.Relays[0] != "wss://relay.test" {
		t.Errorf("entry.Relays = %v, want [wss://relay.test]", entry.Relays)
	}
}

func TestLoadDirectory_MissingFileIsEmpty(t *testing.T) {
	p := &Provisioner{directoryDir: t.TempDir()}

	dir, err := p.loadDirectory("nobody.test")
	if err != nil {
		t.Fatalf("loadDirectory() error: %v", err)
	}
	if len(dir) != 0 {
		t.Errorf("loadDirectory() on a missing file = %v, want empty map", dir)
	}
}

func TestReservedNames(t *testing.T) {
	for _, name := range []string{"admin", "root", "_", "administrator", "__"} {
		if !reservedNames[name] {
			t.Errorf("expected %q to be reserved", name)
		}
	}
	if reservedNames["alice"] {
		t.Error("did not expect alice to be reserved")
	}
}
