package socketio

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePacket(t *testing.T) {
	ackID := 12

	tests := []struct {
		name        string
		data        string
		expected    packet
		expectError bool
	}{
		{
			name:     "connect without payload",
			data:     "0",
			expected: packet{Type: packetConnect},
		},
		{
			name:     "connect with sid",
			data:     `0{"sid":"abc"}`,
			expected: packet{Type: packetConnect, Data: json.RawMessage(`{"sid":"abc"}`)},
		},
		{
			name:     "event",
			data:     `2["heartbeat",{"monitorID":1}]`,
			expected: packet{Type: packetEvent, Data: json.RawMessage(`["heartbeat",{"monitorID":1}]`)},
		},
		{
			name:     "namespaced event with ack id",
			data:     `2/admin,12["ping"]`,
			expected: packet{Type: packetEvent, AckID: &ackID, Data: json.RawMessage(`["ping"]`)},
		},
		{
			name:        "malformed namespace",
			data:        `2/admin["ping"]`,
			expectError: true,
		},
		{
			name:        "empty packet",
			data:        "",
			expectError: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, err := decodePacket([]byte(test.data))
			if test.expectError {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expected, p)
		})
	}
}

func TestDecodeEvent(t *testing.T) {
	name, args, err := decodeEvent(json.RawMessage(`["uptime",1,24,0.99]`))
	require.NoError(t, err)
	assert.Equal(t, "uptime", name)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`1`), json.RawMessage(`24`), json.RawMessage(`0.99`)}, args)

	name, args, err = decodeEvent(json.RawMessage(`["loginRequired"]`))
	require.NoError(t, err)
	assert.Equal(t, "loginRequired", name)
	assert.Empty(t, args)

	_, _, err = decodeEvent(json.RawMessage(`[]`))
	assert.Error(t, err)

	_, _, err = decodeEvent(json.RawMessage(`[1,2]`))
	assert.Error(t, err)

	_, _, err = decodeEvent(json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestEncodeEvent(t *testing.T) {
	frame, err := encodeEvent("login", map[string]string{"username": "admin"})
	require.NoError(t, err)
	assert.Equal(t, `42["login",{"username":"admin"}]`, string(frame))

	frame, err = encodeEvent("getMonitorList")
	require.NoError(t, err)
	assert.Equal(t, `42["getMonitorList"]`, string(frame))
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		in          string
		expected    string
		expectError bool
	}{
		{in: "http://kuma:3001", expected: "ws://kuma:3001/socket.io/?EIO=4&transport=websocket"},
		{in: "https://kuma.example.com/", expected: "wss://kuma.example.com/socket.io/?EIO=4&transport=websocket"},
		{in: "https://example.com/kuma", expected: "wss://example.com/kuma/socket.io/?EIO=4&transport=websocket"},
		{in: "ftp://kuma", expectError: true},
	}

	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			u, err := endpointURL(test.in)
			if test.expectError {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expected, u)
		})
	}
}
