package vault

import "testing"

func TestEncryptDecryptSecretRoundTrip(t *testing.T) {
	const secret = "67dea2ed018072d675f5415ecfaed7d2597555e202d85b3d65ea4e58d2d9293"
	const passphrase = "correct horse battery staple"

	entry, err := EncryptSecret(secret, passphrase)
	if err != nil {
		t.Fatalf("EncryptSecret() error: %v", err)
	}
	if !entry.IsEncrypted() {
		t.Fatal("expected the resulting entry to report IsEncrypted() == true")
	}
	if entry.Key != "" {
		t.Error("encrypted entry should not populate Key")
	}

	got, err := DecryptSecret(entry, passphrase)
	if err != nil {
		t.Fatalf("DecryptSecret() error: %v", err)
	}
	if got != secret {
		t.Errorf("DecryptSecret() = %q, want %q", got, secret)
	}
}

func TestDecryptSecret_WrongPassphrase(t *testing.T) {
	entry, err := EncryptSecret("some-secret-value", "right-passphrase")
	if err != nil {
		t.Fatalf("EncryptSecret() error: %v", err)
	}

	if _, err := DecryptSecret(entry, "wrong-passphrase"); err == nil {
		t.Fatal("expected DecryptSecret() to fail with the wrong passphrase")
	}
}

func TestDecryptSecret_CorruptEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry StoredKey
	}{
		{name: "bad iv hex", entry: StoredKey{IV: "not-hex", Data: "aabbcc"}},
		{name: "short iv", entry: StoredKey{IV: "aabb", Data: "aabbcc"}},
		{name: "bad data hex", entry: StoredKey{IV: "00112233445566778899aabbccddeeff", Data: "not-hex"}},
		{name: "data too short for salt", entry: StoredKey{IV: "00112233445566778899aabbccddeeff", Data: "aa"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecryptSecret(tt.entry, "whatever"); err != ErrCorruptEntry {
				t.Errorf("DecryptSecret() error = %v, want %v", err, ErrCorruptEntry)
			}
		})
	}
}

func TestStoredKey_IsEncrypted(t *testing.T) {
	if (StoredKey{Key: "plainhex"}).IsEncrypted() {
		t.Error("a plain StoredKey should report IsEncrypted() == false")
	}
	if !(StoredKey{IV: "x"}).IsEncrypted() {
		t.Error("a StoredKey with IV set should report IsEncrypted() == true")
	}
	if !(StoredKey{Data: "x"}).IsEncrypted() {
		t.Error("a StoredKey with Data set should report IsEncrypted() == true")
	}
}

func TestPKCS7PadUnpad(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 17, 31, 32} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i)
		}

		padded := pkcs7Pad(data, 16)
		if len(padded)%16 != 0 {
			t.Fatalf("pkcs7Pad(%d bytes) produced length %d, not a multiple of 16", n, len(padded))
		}

		unpadded, err := pkcs7Unpad(padded, 16)
		if err != nil {
			t.Fatalf("pkcs7Unpad() error: %v", err)
		}
		if len(unpadded) != n {
			t.Fatalf("pkcs7Unpad() returned %d bytes, want %d", len(unpadded), n)
		}
		for i := range unpadded {
			if unpadded[i] != byte(i) {
				t.Fatalf("pkcs7Unpad() byte %d = %d, want %d", i, unpadded[i], byte(i))
			}
		}
	}
}

func TestPKCS7Unpad_InvalidPadding(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "not a multiple of block size", data: []byte{1, 2, 3}},
		{name: "zero pad length", data: append(make([]byte, 15), 0)},
		{name: "pad length exceeds block size", data: append(make([]byte, 15), 200)},
		{name: "inconsistent pad bytes", data: append(make([]byte, 14), 2, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := pkcs7Unpad(tt.data, 16); err == nil {
				t.Error("expected an error for invalid padding")
			}
		})
	}
}
