package vault

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	ref, err := c.Store(context.Background(), "k", []byte("data"))
	if err != nil {
		t.Fatalf("Store on nil client should be a no-op, got %v", err)
	}
	if ref != (Ref{}) {
		t.Fatalf("expected zero Ref from nil client, got %+v", ref)
	}

	if _, err := c.Fetch(context.Background(), "k"); err == nil {
		t.Fatal("Fetch on nil client should fail with a clear error, not panic")
	}
}

func TestVerifyChecksum(t *testing.T) {
	data := []byte("hello world")
	sum := sha256.Sum256(data)
	ref := Ref{Checksum: hex.EncodeToString(sum[:])}
	if !VerifyChecksum(ref, data) {
		t.Fatal("expected checksum to verify")
	}
	if VerifyChecksum(ref, bytes.Repeat([]byte("x"), len(data))) {
		t.Fatal("expected checksum mismatch to fail verification")
	}
}
