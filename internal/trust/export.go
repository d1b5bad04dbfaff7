package trust

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// SessionEvidence is a signed export bundling a session's audit chain
// with its completion diagnostics, so the provenance behind any emitted
// code can be verified after the fact. Adapted from the teacher's
// EvidencePackage, which bundled AIR compliance attestations instead.
type SessionEvidence struct {
	SessionID       string       `json:"sessionId"`
	ExportedAt      time.Time    `json:"exportedAt"`
	Chain           []ChainEntry `json:"chain"`
	ChainVerified   bool         `json:"chainVerified"`
	CompletionState any          `json:"completionState"`
	Attestation     string       `json:"attestation"`
}

// Export produces a signed SessionEvidence bundle for sessionID.
func (c *Chain) Export(sessionID string, completionState any) SessionEvidence {
	verified, _ := c.Verify()
	ev := SessionEvidence{
		SessionID:       sessionID,
		ExportedAt:      time.Now().UTC(),
		Chain:           c.Entries(),
		ChainVerified:   verified,
		CompletionState: completionState,
	}
	ev.Attestation = c.attest(ev)
	return ev
}

func (c *Chain) attest(ev SessionEvidence) string {
	ev.Attestation = ""
	raw, err := json.Marshal(ev)
	if err != nil {
		return ""
	}
	mac := hmac.New(sha256.New, c.key)
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyEvidence re-derives the attestation over ev (with its own
// Attestation field zeroed) and compares it, confirming the bundle was
// not altered after export.
func VerifyEvidence(key []byte, ev SessionEvidence) bool {
	want := ev.Attestation
	ev.Attestation = ""
	raw, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(raw)
	got := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(got), []byte(want))
}
