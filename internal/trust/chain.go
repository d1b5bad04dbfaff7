// Package trust implements the Session Audit Chain (spec.md §6.8): a
// tamper-evident, HMAC-signed hash chain over FSM transition events.
// Adapted from the teacher's pkg/trust, which chained AIR proxy records
// instead of session state transitions.
package trust

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// ChainEntry is one signed link in a session's audit chain.
type ChainEntry struct {
	Sequence   int    `json:"sequence"`
	SessionID  string `json:"sessionId"`
	Event      string `json:"event"`
	RecordHash string `json:"recordHash"`
	PrevHash   string `json:"prevHash"`
	Signature  string `json:"signature"`
	Timestamp  time.Time `json:"timestamp"`
}

// Chain is a mutex-guarded, append-only hash chain for one session.
type Chain struct {
	mu      sync.Mutex
	key     []byte
	entries []ChainEntry
}

// NewChain constructs an empty chain signed with key.
func NewChain(key []byte) *Chain {
	return &Chain{key: key}
}

// Append adds a new signed entry recording a session transition event
// (e.g. "parsingHar->awaitingWorkflowSelection") and an opaque record
// (typically the event payload) whose hash is chained.
func (c *Chain) Append(sessionID, event string, record any) (ChainEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := json.Marshal(record)
	if err != nil {
		return ChainEntry{}, err
	}
	recordSum := sha256.Sum256(raw)

	prevHash := ""
	if len(c.entries) > 0 {
		prevHash = c.entries[len(c.entries)-1].Signature
	}

	entry := ChainEntry{
		Sequence:   len(c.entries) + 1,
		SessionID:  sessionID,
		Event:      event,
		RecordHash: hex.EncodeToString(recordSum[:]),
		PrevHash:   prevHash,
		Timestamp:  time.Now().UTC(),
	}
	entry.Signature = c.sign(entry)

	c.entries = append(c.entries, entry)
	return entry, nil
}

func (c *Chain) sign(e ChainEntry) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(e.SessionID))
	mac.Write([]byte(e.Event))
	mac.Write([]byte(e.RecordHash))
	mac.Write([]byte(e.PrevHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// Len returns the number of entries appended so far.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entries returns a copy of the chain's entries in append order.
func (c *Chain) Entries() []ChainEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChainEntry(nil), c.entries...)
}

// Verify walks the chain and confirms every entry's signature and
// prev-hash linkage. A broken chain is reported, never raised as a
// user-visible error, per spec.md §6.8.
func (c *Chain) Verify() (ok bool, brokenAt int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevHash := ""
	for i, e := range c.entries {
		if e.PrevHash != prevHash {
			return false, i
		}
		if c.sign(e) != e.Signature {
			return false, i
		}
		prevHash = e.Signature
	}
	return true, -1
}
