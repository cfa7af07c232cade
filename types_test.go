package facilitator

import "testing"

func TestNetworkParse(t *testing.T) {
	tests := []struct {
		name          string
		network       Network
		wantNamespace string
		wantReference string
		wantErr       bool
	}{
		{
			name:          "evm caip2",
			network:       "eip155:8453",
			wantNamespace: "eip155",
			wantReference: "8453",
		},
		{
			name:          "solana caip2",
			network:       "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1",
			wantNamespace: "solana",
			wantReference: "EtWTRABZaYq6iMfeYKouRu166VU2xqa1",
		},
		{
			name:    "bare legacy name",
			network: "base-sepolia",
			wantErr: true,
		},
		{
			name:    "too many separators",
			network: "eip155:8453:extra",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			namespace, reference, err := tt.network.Parse()
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if namespace != tt.wantNamespace || reference != tt.wantReference {
				t.Errorf("Parse() = (%s, %s), want (%s, %s)", namespace, reference, tt.wantNamespace, tt.wantReference)
			}
		})
	}
}

func TestNetworkMatch(t *testing.T) {
	tests := []struct {
		name    string
		network Network
		pattern Network
		want    bool
	}{
		{name: "exact match", network: "eip155:8453", pattern: "eip155:8453", want: true},
		{name: "wildcard pattern", network: "eip155:8453", pattern: "eip155:*", want: true},
		{name: "wildcard network", network: "eip155:*", pattern: "eip155:84532", want: true},
		{name: "different family", network: "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1", pattern: "eip155:*", want: false},
		{name: "no wildcard no match", network: "eip155:8453", pattern: "eip155:84532", want: false},
		{name: "bare name never matches wildcard", network: "base", pattern: "eip155:*", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.network.Match(tt.pattern); got != tt.want {
				t.Errorf("Match(%s, %s) = %v, want %v", tt.network, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestDetectVersion(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
		wantErr bool
	}{
		{name: "v1", payload: `{"x402Version":1,"scheme":"exact","network":"base"}`, want: 1},
		{name: "v2", payload: `{"x402Version":2,"payload":{},"accepted":{}}`, want: 2},
		{name: "future version", payload: `{"x402Version":7}`, want: 7},
		{name: "missing field", payload: `{"scheme":"exact"}`, wantErr: true},
		{name: "malformed json", payload: `{"x402Version":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectVersion([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Errorf("DetectVersion() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("DetectVersion() = %d, want %d", got, tt.want)
			}
		})
	}
}
