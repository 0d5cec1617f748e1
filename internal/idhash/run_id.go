package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// ComputeRunID computes a deterministic run_id.
// Formula: base58(SHA256(frame_fingerprint|params_json)).
// Identical frames and params always map to the same run, which makes
// repeated runs idempotent in the append-only stores.
func ComputeRunID(frameFingerprint string, p domain.Params) (string, error) {
	params, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}

	data := make([]byte, 0, len(frameFingerprint)+1+len(params))
	data = append(data, frameFingerprint...)
	data = append(data, '|')
	data = append(data, params...)

	sum := sha256.Sum256(data)
	return base58.Encode(sum[:]), nil
}

// DecodeRunID returns the raw 32-byte digest behind a run_id.
func DecodeRunID(runID string) ([]byte, error) {
	raw, err := base58.Decode(runID)
	if err != nil {
		return nil, fmt.Errorf("decode run id: %w", err)
	}
	if len(raw) != sha256.Size {
		return nil, fmt.Errorf("decode run id: digest is %d bytes, want %d", len(raw), sha256.Size)
	}
	return raw, nil
}

// ComputeTradeID computes a deterministic trade_id.
// Formula: SHA256(run_id|seq), hex-encoded (64 characters).
func ComputeTradeID(runID string, seq int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", runID, seq)))
	return hex.EncodeToString(sum[:])
}
