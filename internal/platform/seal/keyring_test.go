package seal

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestKeyring_SealOpenCurrentKey(t *testing.T) {
	k, err := NewKeyring(generateTestKey(t), 1)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}

	sealed, err := k.Seal([]byte("visit notes"), []byte("id"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !strings.HasPrefix(sealed, "v1:") {
		t.Errorf("expected v1: prefix, got %q", sealed)
	}

	got, err := k.Open(sealed, []byte("id"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got) != "visit notes" {
		t.Errorf("Open = %q", got)
	}
}

func TestKeyring_OpenWithPreviousKey(t *testing.T) {
	oldKey := generateTestKey(t)
	oldRing, _ := NewKeyring(oldKey, 1)
	sealed, err := oldRing.Seal([]byte("old row"), nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	newRing, _ := NewKeyring(generateTestKey(t), 2)
	if _, err := newRing.Open(sealed, nil); err == nil {
		t.Fatal("expected error before the old key is registered")
	}
	if err := newRing.AddKey(oldKey, 1); err != nil {
		t.Fatalf("AddKey: %v", err)
	}
	got, err := newRing.Open(sealed, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got) != "old row" {
		t.Errorf("Open = %q", got)
	}
}

func TestKeyring_StaleAndReseal(t *testing.T) {
	oldKey := generateTestKey(t)
	oldRing, _ := NewKeyring(oldKey, 1)
	sealed, _ := oldRing.Seal([]byte("row"), []byte("aad"))

	k, _ := NewKeyring(generateTestKey(t), 2)
	_ = k.AddKey(oldKey, 1)

	if !k.Stale(sealed) {
		t.Error("expected v1 value to be stale under v2")
	}
	if !k.Stale("no-prefix") {
		t.Error("expected unversioned value to be stale")
	}

	resealed, err := k.Reseal(sealed, []byte("aad"))
	if err != nil {
		t.Fatalf("Reseal: %v", err)
	}
	if !strings.HasPrefix(resealed, "v2:") {
		t.Errorf("expected v2: prefix, got %q", resealed)
	}
	if k.Stale(resealed) {
		t.Error("resealed value should be current")
	}
	got, err := k.Open(resealed, []byte("aad"))
	if err != nil || string(got) != "row" {
		t.Errorf("Open(resealed) = %q, %v", got, err)
	}
}

func TestKeyring_Errors(t *testing.T) {
	if _, err := NewKeyring(generateTestKey(t), 0); err == nil {
		t.Error("expected error for version 0")
	}
	if _, err := NewKeyring(make([]byte, 8), 1); err == nil {
		t.Error("expected error for short key")
	}

	k, _ := NewKeyring(generateTestKey(t), 3)
	if err := k.AddKey(generateTestKey(t), 3); err == nil {
		t.Error("expected error when replacing the current key")
	}
	if err := k.AddKey(make([]byte, 5), 2); err == nil {
		t.Error("expected error for invalid previous key")
	}
	if k.Version() != 3 {
		t.Errorf("Version = %d, want 3", k.Version())
	}

	for _, bad := range []string{"", "x1:abc", "v:abc", "vx:abc", "v9:abc", "v3:%%%"} {
		if _, err := k.Open(bad, nil); err == nil {
			t.Errorf("Open(%q) expected error", bad)
		}
	}
}

func TestParseKeyring(t *testing.T) {
	current := hex.EncodeToString(generateTestKey(t))
	prev1 := generateTestKey(t)
	prev2 := generateTestKey(t)
	previous := "1:" + hex.EncodeToString(prev1) + ", 2:" + hex.EncodeToString(prev2)

	k, err := ParseKeyring(current, 3, previous)
	if err != nil {
		t.Fatalf("ParseKeyring: %v", err)
	}
	if k.Version() != 3 {
		t.Errorf("Version = %d, want 3", k.Version())
	}

	old, _ := NewKeyring(prev2, 2)
	sealed, _ := old.Seal([]byte("v2 row"), nil)
	if got, err := k.Open(sealed, nil); err != nil || string(got) != "v2 row" {
		t.Errorf("Open(v2) = %q, %v", got, err)
	}

	tests := []struct {
		name     string
		current  string
		previous string
	}{
		{"bad current", "zz", ""},
		{"missing separator", current, "abc"},
		{"bad version", current, "one:" + hex.EncodeToString(prev1)},
		{"bad previous key", current, "1:abcd"},
		{"previous equals current version", current, "3:" + hex.EncodeToString(prev1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseKeyring(tt.current, 3, tt.previous); err == nil {
				t.Error("expected error")
			}
		})
	}
}
