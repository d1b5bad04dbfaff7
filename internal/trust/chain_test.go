package trust

import "testing"

func TestChainAppendAndVerify(t *testing.T) {
	c := NewChain([]byte("secret"))
	if _, err := c.Append("sess-1", "initializing->parsingHar", map[string]string{"a": "1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := c.Append("sess-1", "parsingHar->awaitingWorkflowSelection", map[string]string{"b": "2"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	ok, brokenAt := c.Verify()
	if !ok {
		t.Fatalf("expected chain to verify, broke at %d", brokenAt)
	}
}

func TestChainVerifyDetectsTamper(t *testing.T) {
	c := NewChain([]byte("secret"))
	c.Append("sess-1", "e1", nil)
	c.Append("sess-1", "e2", nil)
	c.entries[1].Event = "tampered"
	ok, brokenAt := c.Verify()
	if ok {
		t.Fatal("expected tampered chain to fail verification")
	}
	if brokenAt != 1 {
		t.Fatalf("expected break detected at index 1, got %d", brokenAt)
	}
}

func TestExportAndVerifyEvidence(t *testing.T) {
	c := NewChain([]byte("secret"))
	c.Append("sess-1", "e1", nil)
	ev := c.Export("sess-1", map[string]bool{"canGenerateCode": true})
	if !VerifyEvidence([]byte("secret"), ev) {
		t.Fatal("expected evidence to verify with correct key")
	}
	if VerifyEvidence([]byte("wrong-key"), ev) {
		t.Fatal("expected evidence verification to fail with wrong key")
	}
}
