package connection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Engine.IO v4 packet types (first byte of every WebSocket frame).
const (
	eioOpen    byte = '0'
	eioClose   byte = '1'
	eioPing    byte = '2'
	eioPong    byte = '3'
	eioMessage byte = '4'
	eioUpgrade byte = '5'
	eioNoop    byte = '6'
)

// PacketType is a Socket.IO v5 packet type, carried inside an Engine.IO
// message.
type PacketType byte

const (
	PacketConnect      PacketType = '0'
	PacketDisconnect   PacketType = '1'
	PacketEvent        PacketType = '2'
	PacketAck          PacketType = '3'
	PacketConnectError PacketType = '4'
	PacketBinaryEvent  PacketType = '5'
	PacketBinaryAck    PacketType = '6'
)

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type      PacketType
	Namespace string
	AckID     int64 // -1 when absent
	Data      json.RawMessage
}

// openPayload is the Engine.IO handshake sent by the server.
type openPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // milliseconds
	PingTimeout  int      `json:"pingTimeout"`  // milliseconds
	MaxPayload   int      `json:"maxPayload"`
}

// connectPayload is the body of a namespace connect acknowledgement.
type connectPayload struct {
	SID string `json:"sid"`
}

// connectErrorPayload is the body of a namespace connect error.
type connectErrorPayload struct {
	Message string `json:"message"`
}

var errEmptyFrame = errors.New("empty frame")

// EncodePacket renders a Socket.IO packet as an Engine.IO message frame.
func EncodePacket(p Packet) []byte {
	var buf bytes.Buffer
	buf.WriteByte(eioMessage)
	buf.WriteByte(byte(p.Type))
	if p.Namespace != "" && p.Namespace != "/" {
		buf.WriteString(p.Namespace)
		buf.WriteByte(',')
	}
	if p.AckID >= 0 && (p.Type == PacketEvent || p.Type == PacketAck) {
		fmt.Fprintf(&buf, "%d", p.AckID)
	}
	buf.Write(p.Data)
	return buf.Bytes()
}

// EncodeEvent renders an event emit for namespace.
func EncodeEvent(namespace, name string, args ...any) ([]byte, error) {
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, name)
	payload = append(payload, args...)

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", name, err)
	}

	return EncodePacket(Packet{
		Type:      PacketEvent,
		Namespace: namespace,
		AckID:     -1,
		Data:      data,
	}), nil
}

// DecodePacket parses the Socket.IO part of an Engine.IO message frame. The
// leading Engine.IO type byte must already be stripped.
func DecodePacket(data []byte) (Packet, error) {
	if len(data) == 0 {
		return Packet{}, errEmptyFrame
	}

	p := Packet{
		Type:      PacketType(data[0]),
		Namespace: "/",
		AckID:     -1,
	}
	if p.Type < PacketConnect || p.Type > PacketBinaryAck {
		return Packet{}, fmt.Errorf("unknown packet type %q", data[0])
	}
	rest := data[1:]

	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		return Packet{}, fmt.Errorf("binary packets are not supported")
	}

	if len(rest) > 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = string(rest)
			return p, nil
		}
		p.Namespace = string(rest[:end])
		rest = rest[end+1:]
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i > 0 {
		var id int64
		for _, c := range rest[:i] {
			id = id*10 + int64(c-'0')
		}
		p.AckID = id
		rest = rest[i:]
	}

	if len(rest) > 0 {
		if !json.Valid(rest) {
			return Packet{}, fmt.Errorf("invalid packet payload")
		}
		p.Data = json.RawMessage(rest)
	}

	return p, nil
}

// Event splits an event packet into its name and arguments.
func (p Packet) Event() (string, []json.RawMessage, error) {
	if p.Type != PacketEvent {
		return "", nil, fmt.Errorf("packet type %q is not an event", byte(p.Type))
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(p.Data, &parts); err != nil {
		return "", nil, fmt.Errorf("decode event array: %w", err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("event array is empty")
	}

	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("decode event name: %w", err)
	}

	return name, parts[1:], nil
}

// Endpoint derives the WebSocket URL of the Socket.IO endpoint from the
// configured base address. Any path on the base address is kept as a prefix
// in front of socketPath; a trailing slash is ignored.
//
//	https://api.example.com/backend/ → wss://api.example.com/backend/socket.io/?EIO=4&transport=websocket
func Endpoint(baseURL, socketPath string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", baseURL)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("base url %q: unsupported scheme %q", baseURL, u.Scheme)
	}

	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	prefix := strings.TrimSuffix(u.Path, "/")
	u.Path = prefix + "/" + strings.Trim(socketPath, "/") + "/"
	u.RawPath = ""
	u.RawQuery = url.Values{
		"EIO":       []string{"4"},
		"transport": []string{"websocket"},
	}.Encode()
	u.Fragment = ""

	return u.String(), nil
}
