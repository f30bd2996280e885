package telegram

import (
	"strconv"
	"strings"
)

// Parser decodes one sub-protocol. Parse receives a line that starts with
// Prefix and is at least MinLength long; it reports false when the fixed
// fields are malformed, which classifies the line as unknown.
type Parser struct {
	Prefix    byte
	Protocol  Protocol
	MinLength int
	Parse     func(line string) (Message, bool)
}

// Decoder dispatches telegrams to parsers keyed by their leading character.
type Decoder struct {
	rssi    bool
	parsers map[byte]Parser
}

// NewDecoder returns a decoder loaded with the built-in protocol table.
// With rssi set, the trailing hex byte of every telegram is decoded
// as signal strength.
func NewDecoder(rssi bool) *Decoder {
	d := &Decoder{rssi: rssi, parsers: make(map[byte]Parser)}
	for _, p := range DefaultParsers() {
		d.Register(p)
	}
	return d
}

// Register adds or replaces the parser for p.Prefix.
func (d *Decoder) Register(p Parser) {
	d.parsers[p.Prefix] = p
}

// Decode never fails: unrecognized input becomes an UNKNOWN message
// carrying the line as data.raw.
func (d *Decoder) Decode(line string) Message {
	raw := strings.TrimSpace(line)

	msg, ok := d.parse(raw)
	if !ok {
		msg = Message{
			Protocol: ProtocolUnknown,
			Address:  UnknownAddress,
			Data:     map[string]any{FieldRaw: raw},
		}
	}
	if msg.Data == nil {
		msg.Data = make(map[string]any)
	}

	if d.rssi {
		if v, ok := DecodeRSSI(raw); ok {
			msg.Data[FieldRSSI] = v
		}
	}
	return msg
}

func (d *Decoder) parse(raw string) (Message, bool) {
	if raw == "" {
		return Message{}, false
	}
	p, ok := d.parsers[raw[0]]
	if !ok || len(raw) < p.MinLength {
		return Message{}, false
	}
	msg, ok := p.Parse(raw)
	if !ok {
		return Message{}, false
	}
	msg.Protocol = p.Protocol
	return msg, true
}

// Decode decodes line with the built-in protocol table.
func Decode(line string, rssi bool) Message {
	return NewDecoder(rssi).Decode(line)
}

// DecodeRSSI converts the last two characters of line, read as a hex byte,
// to dBm using the CUL formula.
func DecodeRSSI(line string) (float64, bool) {
	if len(line) <= 2 {
		return 0, false
	}
	v, err := strconv.ParseUint(line[len(line)-2:], 16, 8)
	if err != nil {
		return 0, false
	}
	return RSSIFromByte(uint8(v)), true
}

// RSSIFromByte applies the stick's linear formula to a raw RSSI byte.
func RSSIFromByte(b uint8) float64 {
	v := float64(b)
	if b >= 128 {
		return (v-256)/2 - 74
	}
	return v/2 - 74
}
