package telegram

import (
	"math"
	"testing"
)

// ============================================================
// Protocol parsing
// ============================================================

func TestDecode_FS20(t *testing.T) {
	msg := Decode("F1234ABCD0101", false)
	if msg.Protocol != ProtocolFS20 {
		t.Fatalf("expected FS20, got %s", msg.Protocol)
	}
	if msg.Address != "1234AB" {
		t.Errorf("address = %q, want 1234AB", msg.Address)
	}
	if msg.Device != "FS20" {
		t.Errorf("device = %q, want FS20", msg.Device)
	}
	if msg.Data["cmd"] != "CD" || msg.Data["state"] != "CD" {
		t.Errorf("cmd/state = %v/%v, want CD/CD", msg.Data["cmd"], msg.Data["state"])
	}
	if msg.Native["housecode"] != "1234" || msg.Native["button"] != "AB" {
		t.Errorf("native = %v", msg.Native)
	}
	if _, ok := msg.Data[FieldRSSI]; ok {
		t.Error("rssi must be absent when disabled")
	}
}

func TestDecode_FS20Minimal(t *testing.T) {
	msg := Decode("F1A2B3C11", false)
	if msg.Protocol != ProtocolFS20 {
		t.Fatalf("expected FS20, got %s", msg.Protocol)
	}
	if msg.Data["cmd"] != "11" {
		t.Errorf("cmd = %v, want trailing 11", msg.Data["cmd"])
	}
}

func TestDecode_FS20EndToEndLine(t *testing.T) {
	msg := Decode("F1A2B3C40101", true)
	if msg.Address != "1A2B3C" {
		t.Errorf("address = %q", msg.Address)
	}
	if msg.Data["state"] != "40" {
		t.Errorf("state = %v, want 40", msg.Data["state"])
	}
	if rssi, ok := msg.RSSI(); !ok || rssi != -73.5 {
		t.Errorf("rssi = %v, %v; want -73.5", rssi, ok)
	}
}

func TestDecode_Protocols(t *testing.T) {
	tests := []struct {
		line     string
		protocol Protocol
		address  string
		field    string
		value    any
	}{
		{"T1234000A6C", ProtocolFHT, "1234", "value", "6C"},
		{"T1234000A6C", ProtocolFHT, "1234", "func", "00"},
		{"H12340101AB", ProtocolHMS, "1234", "type", "01"},
		{"H12340101AB", ProtocolHMS, "1234", "val", "01AB"},
		{"E0102030A000500FF00", ProtocolEM, "0102", "total", float64(10)},
		{"E0102030A000500FF00", ProtocolEM, "0102", "current", float64(5)},
		{"E0102030A000500FF00", ProtocolEM, "0102", "peak", float64(255)},
		{"E0102030A000500FF00", ProtocolEM, "0102", "seq", "03"},
		{"Z0B0102031234561234560012", ProtocolMoritz, "123456", "msgtype", "03"},
		{"Z0B0102031234561234560012", ProtocolMoritz, "123456", "group", "00"},
		{"Z0B0102031234561234560012", ProtocolMoritz, "123456", "payload", "12"},
	}

	for _, tt := range tests {
		t.Run(tt.line+"/"+tt.field, func(t *testing.T) {
			msg := Decode(tt.line, false)
			if msg.Protocol != tt.protocol {
				t.Fatalf("protocol = %s, want %s", msg.Protocol, tt.protocol)
			}
			if msg.Address != tt.address {
				t.Errorf("address = %q, want %q", msg.Address, tt.address)
			}
			if msg.Data[tt.field] != tt.value {
				t.Errorf("%s = %v (%T), want %v (%T)", tt.field, msg.Data[tt.field], msg.Data[tt.field], tt.value, tt.value)
			}
		})
	}
}

func TestDecode_UnknownFallback(t *testing.T) {
	tests := []struct {
		name string
		line string
		raw  string
	}{
		{"unrecognized prefix", "Zxyz", "Zxyz"},
		{"other prefix", "Q12345", "Q12345"},
		{"fs20 too short", "F1234", "F1234"},
		{"fs20 not hex", "FXYZWABCD", "FXYZWABCD"},
		{"hms too short", "H1234", "H1234"},
		{"surrounding space", "  LOVF \r", "LOVF"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Decode(tt.line, false)
			if msg.Known() {
				t.Fatalf("expected UNKNOWN, got %s", msg.Protocol)
			}
			if msg.Address != UnknownAddress {
				t.Errorf("address = %q, want placeholder", msg.Address)
			}
			if msg.Data[FieldRaw] != tt.raw {
				t.Errorf("raw = %v, want %q", msg.Data[FieldRaw], tt.raw)
			}
		})
	}
}

func TestDecoder_Register(t *testing.T) {
	d := NewDecoder(false)
	d.Register(Parser{
		Prefix:    'K',
		Protocol:  Protocol("WS"),
		MinLength: 3,
		Parse: func(line string) (Message, bool) {
			return Message{Address: line[1:3], Data: map[string]any{"v": line[3:]}}, true
		},
	})
	msg := d.Decode("K0142")
	if msg.Protocol != "WS" || msg.Address != "01" || msg.Data["v"] != "42" {
		t.Errorf("custom parser not used: %+v", msg)
	}
}

// ============================================================
// RSSI
// ============================================================

func TestRSSIFromByte(t *testing.T) {
	tests := []struct {
		hex  string
		want float64
	}{
		{"1E", -59},
		{"FF", -74.5},
		{"80", -138},
		{"00", -74},
		{"7F", -10.5},
	}

	for _, tt := range tests {
		t.Run(tt.hex, func(t *testing.T) {
			got, ok := DecodeRSSI("X" + tt.hex)
			if !ok {
				t.Fatal("expected rssi to decode")
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("rssi(%s) = %v, want %v", tt.hex, got, tt.want)
			}
		})
	}
}

func TestDecode_RSSIOmittedWhenUnparseable(t *testing.T) {
	msg := Decode("Zxyz", true)
	if _, ok := msg.Data[FieldRSSI]; ok {
		t.Errorf("rssi should be omitted for non-hex trailer, got %v", msg.Data[FieldRSSI])
	}
	msg = Decode("AB", true)
	if _, ok := msg.Data[FieldRSSI]; ok {
		t.Error("rssi requires more than two characters")
	}
}

func TestDecode_RSSIOnUnknown(t *testing.T) {
	msg := Decode("Q12341E", true)
	if msg.Known() {
		t.Fatal("expected UNKNOWN")
	}
	if rssi, ok := msg.RSSI(); !ok || rssi != -59 {
		t.Errorf("rssi = %v, %v; want -59", rssi, ok)
	}
}
