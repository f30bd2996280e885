package telegram

// Protocol names a sub-protocol sharing the CUL radio channel.
type Protocol string

const (
	ProtocolFS20    Protocol = "FS20"
	ProtocolFHT     Protocol = "FHT"
	ProtocolHMS     Protocol = "HMS"
	ProtocolEM      Protocol = "EM"
	ProtocolMoritz  Protocol = "MORITZ"
	ProtocolUnknown Protocol = "UNKNOWN"
)

// UnknownAddress is the placeholder address of unrecognized telegrams.
const UnknownAddress = "0000"

// Field names shared between decoders and the reconciler.
const (
	FieldRaw  = "raw"
	FieldRSSI = "rssi"
)

// Message is the normalized form of one telegram.
// Data values are either string or float64.
type Message struct {
	Protocol Protocol          `json:"protocol"`
	Address  string            `json:"address"`
	Device   string            `json:"device,omitempty"`
	Native   map[string]string `json:"native,omitempty"`
	Data     map[string]any    `json:"data"`
}

// Known reports whether the telegram matched one of the protocol parsers.
func (m Message) Known() bool {
	return m.Protocol != ProtocolUnknown
}

// RSSI returns the decoded signal strength, if present.
func (m Message) RSSI() (float64, bool) {
	v, ok := m.Data[FieldRSSI].(float64)
	return v, ok
}
