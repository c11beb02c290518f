// Package graph provides the core graph execution engine.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Replay provides deterministic replay of recorded node I/O (§7).

// RecordedIO captures an external interaction (API call, database query,.
// etc.) for deterministic replay without re-invoking the external service.
//
// Recordings are keyed by (NodeName, Superstep, Attempt); see.
// lookupRecordedIO. The superstep loop neither creates nor consults them:.
// nodes always run live, whatever SideEffectPolicy.Recordable says.
//
// Hash enables mismatch detection: verifyReplayHash returns an error.
// wrapping ErrReplayMismatch when a response's hash differs from the.
// recording, indicating non-deterministic node behavior.
type RecordedIO struct {
	NodeName  string          `json:"node_name"`
	Superstep int             `json:"superstep"`
	Attempt   int             `json:"attempt"`
	Request   json.RawMessage `json:"request"`
	Response  json.RawMessage `json:"response"`
	Hash      string          `json:"hash"`
	Timestamp time.Time       `json:"timestamp"`
	Duration  time.Duration   `json:"duration"`
}

// recordIO serializes a request/response pair and computes a response hash,.
// producing a RecordedIO a checkpoint can persist for later replay.
func recordIO(nodeName string, superstep, attempt int, request, response interface{}) (RecordedIO, error) {
	start := time.Now()

	requestJSON, err := json.Marshal(request)
	if err != nil {
		return RecordedIO{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return RecordedIO{}, fmt.Errorf("failed to marshal response: %w", err)
	}

	hasher := sha256.New()
	hasher.Write(responseJSON)
	hashStr := "sha256:" + hex.EncodeToString(hasher.Sum(nil))

	return RecordedIO{
		NodeName:  nodeName,
		Superstep: superstep,
		Attempt:   attempt,
		Request:   json.RawMessage(requestJSON),
		Response:  json.RawMessage(responseJSON),
		Hash:      hashStr,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}, nil
}

// lookupRecordedIO retrieves a recording by (nodeName, superstep, attempt),.
// the key replay mode uses instead of re-executing a node.
func lookupRecordedIO(recordings []RecordedIO, nodeName string, superstep, attempt int) (RecordedIO, bool) {
	for _, rec := range recordings {
		if rec.NodeName == nodeName && rec.Superstep == superstep && rec.Attempt == attempt {
			return rec, true
		}
	}
	return RecordedIO{}, false
}

// verifyReplayHash validates that a live execution response matches a.
// recorded response; a mismatch indicates non-deterministic node behavior.
// (unseeded RNG, wall-clock reads, map iteration order, external state drift).
func verifyReplayHash(recorded RecordedIO, actualResponse interface{}) error {
	actualJSON, err := json.Marshal(actualResponse)
	if err != nil {
		return fmt.Errorf("failed to marshal actual response: %w", err)
	}

	hasher := sha256.New()
	hasher.Write(actualJSON)
	actualHash := "sha256:" + hex.EncodeToString(hasher.Sum(nil))

	if actualHash != recorded.Hash {
		return fmt.Errorf("%w: expected %s, got %s", ErrReplayMismatch, recorded.Hash, actualHash)
	}
	return nil
}
