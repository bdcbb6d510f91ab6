package permission

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// DoomLoopThreshold is the number of identical calls before triggering.
const DoomLoopThreshold = 3

const doomLoopHistory = 10

// DoomLoopDetector tracks repeated tool calls per session.
type DoomLoopDetector struct {
	mu        sync.Mutex
	threshold int
	history   map[string][]string // sessionID -> recent call hashes
}

// NewDoomLoopDetector creates a detector. A threshold below 2 uses
// DoomLoopThreshold.
func NewDoomLoopDetector(threshold int) *DoomLoopDetector {
	if threshold < 2 {
		threshold = DoomLoopThreshold
	}
	return &DoomLoopDetector{
		threshold: threshold,
		history:   make(map[string][]string),
	}
}

// Observe records a call and reports whether it completes a run of
// threshold identical calls.
func (d *DoomLoopDetector) Observe(sessionID, tool string, args json.RawMessage) bool {
	hash := hashCall(tool, args)

	d.mu.Lock()
	defer d.mu.Unlock()

	history := append(d.history[sessionID], hash)
	if len(history) > doomLoopHistory {
		history = history[len(history)-doomLoopHistory:]
	}
	d.history[sessionID] = history

	if len(history) < d.threshold {
		return false
	}
	for _, h := range history[len(history)-d.threshold:] {
		if h != hash {
			return false
		}
	}
	return true
}

// hashCall hashes the tool name and its compacted arguments.
func hashCall(tool string, args json.RawMessage) string {
	var compact bytes.Buffer
	if err := json.Compact(&compact, args); err != nil {
		compact.Reset()
		compact.Write(args)
	}
	h := sha256.New()
	h.Write([]byte(tool))
	h.Write([]byte{0})
	h.Write(compact.Bytes())
	return hex.EncodeToString(h.Sum(nil))
}

// Clear forgets the history of a session.
func (d *DoomLoopDetector) Clear(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, sessionID)
}
