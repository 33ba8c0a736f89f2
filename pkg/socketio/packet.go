package socketio

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// Engine.IO v4 packet types.
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineUpgrade = '5'
	engineNoop    = '6'
)

// Socket.IO v5 packet types, carried inside Engine.IO message packets.
const (
	packetConnect      = '0'
	packetDisconnect   = '1'
	packetEvent        = '2'
	packetAck          = '3'
	packetConnectError = '4'
)

// handshake is the payload of the Engine.IO open packet.
type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// packet is a decoded Socket.IO packet of the default namespace.
type packet struct {
	Type  byte
	AckID *int
	Data  json.RawMessage
}

// decodePacket decodes a Socket.IO packet, that is an Engine.IO message
// without its leading type byte.
func decodePacket(data []byte) (packet, error) {
	if len(data) == 0 {
		return packet{}, errors.New("empty packet")
	}

	p := packet{Type: data[0]}
	rest := data[1:]

	// Namespaced packets are prefixed with "/<nsp>,".
	if len(rest) > 0 && rest[0] == '/' {
		i := bytes.IndexByte(rest, ',')
		if i < 0 {
			return packet{}, errors.Errorf("malformed namespace in packet %q", data)
		}

		rest = rest[i+1:]
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}

	if i > 0 {
		id, err := strconv.Atoi(string(rest[:i]))
		if err != nil {
			return packet{}, errors.Wrapf(err, "invalid ack id in packet %q", data)
		}

		p.AckID = &id
		rest = rest[i:]
	}

	if len(rest) > 0 {
		p.Data = json.RawMessage(rest)
	}

	return p, nil
}

// decodeEvent splits the data of an event packet into event name and
// arguments.
func decodeEvent(data json.RawMessage) (string, []json.RawMessage, error) {
	var items []json.RawMessage

	if err := json.Unmarshal(data, &items); err != nil {
		return "", nil, errors.Wrapf(err, "invalid event payload")
	}

	if len(items) == 0 {
		return "", nil, errors.New("event payload is empty")
	}

	var name string
	if err := json.Unmarshal(items[0], &name); err != nil {
		return "", nil, errors.Wrapf(err, "invalid event name")
	}

	return name, items[1:], nil
}

// encodeEvent encodes an event as Engine.IO message frame.
func encodeEvent(name string, args ...interface{}) ([]byte, error) {
	payload, err := json.Marshal(append([]interface{}{name}, args...))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode event %q", name)
	}

	frame := make([]byte, 0, len(payload)+2)
	frame = append(frame, engineMessage, packetEvent)
	frame = append(frame, payload...)

	return frame, nil
}
