package facilitator

import (
	"encoding/json"
	"fmt"
)

// DetectVersion reads the x402Version tag from raw payload bytes without
// committing to a version-specific shape.
func DetectVersion(payloadBytes []byte) (int, error) {
	var probe struct {
		X402Version *int `json:"x402Version"`
	}
	if err := json.Unmarshal(payloadBytes, &probe); err != nil {
		return 0, fmt.Errorf("malformed payment payload: %w", err)
	}
	if probe.X402Version == nil {
		return 0, fmt.Errorf("payment payload missing x402Version")
	}
	return *probe.X402Version, nil
}
