package telegram

import "strconv"

// DefaultParsers returns the built-in protocol table.
func DefaultParsers() []Parser {
	return []Parser{
		{Prefix: 'F', Protocol: ProtocolFS20, MinLength: 9, Parse: parseFS20},
		{Prefix: 'T', Protocol: ProtocolFHT, MinLength: 11, Parse: parseFHT},
		{Prefix: 'H', Protocol: ProtocolHMS, MinLength: 10, Parse: parseHMS},
		{Prefix: 'E', Protocol: ProtocolEM, MinLength: 19, Parse: parseEM},
		{Prefix: 'Z', Protocol: ProtocolMoritz, MinLength: 23, Parse: parseMoritz},
	}
}

// FS20: F HHHH AA CC [EE] [RR]
func parseFS20(line string) (Message, bool) {
	if !isHex(line[1:9]) {
		return Message{}, false
	}
	cmd := line[7:9]
	return Message{
		Address: line[1:7],
		Device:  string(ProtocolFS20),
		Native: map[string]string{
			"housecode": line[1:5],
			"button":    line[5:7],
		},
		Data: map[string]any{
			"cmd":   cmd,
			"state": cmd,
		},
	}, true
}

// FHT: T HHHH FF SS VV [RR]
func parseFHT(line string) (Message, bool) {
	if !isHex(line[1:11]) {
		return Message{}, false
	}
	return Message{
		Address: line[1:5],
		Device:  string(ProtocolFHT),
		Data: map[string]any{
			"func":   line[5:7],
			"status": line[7:9],
			"value":  line[9:11],
		},
	}, true
}

// HMS: H AAAA TT VVV...
func parseHMS(line string) (Message, bool) {
	if !isHex(line[1:7]) {
		return Message{}, false
	}
	return Message{
		Address: line[1:5],
		Device:  string(ProtocolHMS),
		Data: map[string]any{
			"type": line[5:7],
			"val":  line[7:],
		},
	}, true
}

// EM: E TT AA SS 1111 2222 3333 [RR], counters little-endian.
func parseEM(line string) (Message, bool) {
	if !isHex(line[1:19]) {
		return Message{}, false
	}
	total, _ := littleEndian16(line[7:11])
	current, _ := littleEndian16(line[11:15])
	peak, _ := littleEndian16(line[15:19])
	return Message{
		Address: line[1:5],
		Device:  string(ProtocolEM),
		Native: map[string]string{
			"type": line[1:3],
		},
		Data: map[string]any{
			"seq":     line[5:7],
			"total":   float64(total),
			"current": float64(current),
			"peak":    float64(peak),
		},
	}, true
}

// MORITZ: Z LL CC FF TT SSSSSS DDDDDD GG PP...
func parseMoritz(line string) (Message, bool) {
	if !isHex(line[1:23]) {
		return Message{}, false
	}
	return Message{
		Address: line[9:15],
		Device:  string(ProtocolMoritz),
		Data: map[string]any{
			"msgcnt":  line[3:5],
			"flag":    line[5:7],
			"msgtype": line[7:9],
			"dst":     line[15:21],
			"group":   line[21:23],
			"payload": line[23:],
		},
	}, true
}

func littleEndian16(s string) (uint16, bool) {
	lo, err := strconv.ParseUint(s[0:2], 16, 8)
	if err != nil {
		return 0, false
	}
	hi, err := strconv.ParseUint(s[2:4], 16, 8)
	if err != nil {
		return 0, false
	}
	return uint16(hi)<<8 | uint16(lo), true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'F', c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
