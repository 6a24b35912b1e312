package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Engine.IO v4 packet types, the first byte of every websocket frame.
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineNoop    = '6'
)

// Socket.IO v5 packet types, the first byte of an Engine.IO message body.
type packetType byte

const (
	packetConnect      packetType = '0'
	packetDisconnect   packetType = '1'
	packetEvent        packetType = '2'
	packetAck          packetType = '3'
	packetConnectError packetType = '4'
	packetBinaryEvent  packetType = '5'
	packetBinaryAck    packetType = '6'
)

var errMalformedPacket = errors.New("transport: malformed packet")

// handshake is the payload of the Engine.IO open packet.
type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int    `json:"maxPayload"`
}

// defaultReadLimit bounds inbound frames when the server does not
// advertise maxPayload.
const defaultReadLimit = 1 << 20

// readLimit is the largest frame the client accepts. A refined transcript
// easily exceeds the websocket library's 32 KiB default.
func (h handshake) readLimit() int64 {
	if h.MaxPayload <= 0 {
		return defaultReadLimit
	}
	return int64(h.MaxPayload)
}

// readDeadline is how long the client may go without hearing from the
// server before the connection is considered dead.
func (h handshake) readDeadline() time.Duration {
	if h.PingInterval <= 0 {
		return 0
	}
	return time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
}

// packet is a decoded Socket.IO packet.
type packet struct {
	Type      packetType
	Namespace string
	Data      json.RawMessage
}

// endpointURL turns the configured server base URL into the Engine.IO
// websocket endpoint.
func endpointURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("server url %q: unsupported scheme %q", base, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q: missing host", base)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/socket.io/"
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// splitFrame separates an Engine.IO frame into its type and body.
func splitFrame(frame []byte) (byte, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, errMalformedPacket
	}
	return frame[0], frame[1:], nil
}

func namespacePrefix(ns string) string {
	if ns == "" || ns == "/" {
		return ""
	}
	return ns + ","
}

func encodeConnect(ns string) []byte {
	return append([]byte{engineMessage, byte(packetConnect)}, namespacePrefix(ns)...)
}

func encodeDisconnect(ns string) []byte {
	return append([]byte{engineMessage, byte(packetDisconnect)}, namespacePrefix(ns)...)
}

// encodeEvent builds a namespaced event frame. A nil payload sends the
// event name alone.
func encodeEvent(ns, event string, payload any) ([]byte, error) {
	args := []any{event}
	if payload != nil {
		args = append(args, payload)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", event, err)
	}

	var b strings.Builder
	b.Grow(3 + len(ns) + len(data))
	b.WriteByte(engineMessage)
	b.WriteByte(byte(packetEvent))
	b.WriteString(namespacePrefix(ns))
	b.Write(data)
	return []byte(b.String()), nil
}

// decodePacket parses the body of an Engine.IO message as a Socket.IO
// packet: type, optional attachment count, optional namespace, optional
// ack id, optional JSON data.
func decodePacket(body []byte) (packet, error) {
	if len(body) == 0 {
		return packet{}, errMalformedPacket
	}
	p := packet{Type: packetType(body[0]), Namespace: "/"}
	rest := string(body[1:])

	if p.Type == packetBinaryEvent || p.Type == packetBinaryAck {
		i := strings.IndexByte(rest, '-')
		if i == -1 {
			return packet{}, errMalformedPacket
		}
		rest = rest[i+1:]
	}

	if strings.HasPrefix(rest, "/") {
		i := strings.IndexByte(rest, ',')
		if i == -1 {
			p.Namespace, rest = rest, ""
		} else {
			p.Namespace, rest = rest[:i], rest[i+1:]
		}
	}

	// ack id
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	rest = rest[i:]

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return packet{}, fmt.Errorf("%w: invalid json data", errMalformedPacket)
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// decodeEvent splits event data into its name and first argument.
func decodeEvent(data json.RawMessage) (string, json.RawMessage, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(data, &args); err != nil {
		return "", nil, fmt.Errorf("%w: event is not an array", errMalformedPacket)
	}
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%w: empty event", errMalformedPacket)
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %v", errMalformedPacket, err)
	}
	if len(args) == 1 {
		return name, nil, nil
	}
	return name, args[1], nil
}

// connectErrorMessage extracts the reason from a CONNECT_ERROR payload,
// which is either an object with a message field or a bare string.
func connectErrorMessage(data json.RawMessage) string {
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return strconv.Quote(string(data))
}
