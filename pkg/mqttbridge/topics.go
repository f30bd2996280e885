package mqttbridge

import (
	"encoding/json"
	"strconv"
	"strings"
)

const setSuffix = "set"

// StateTopic maps a state id to its topic, "." becoming "/".
func StateTopic(prefix, id string) string {
	return prefix + "/" + strings.ReplaceAll(id, ".", "/")
}

// SubscribeTopic matches {prefix}/{protocol}/{address}/{field}/set.
func SubscribeTopic(prefix string) string {
	return prefix + "/+/+/+/" + setSuffix
}

// StateIDFromSetTopic is the inverse of StateTopic for command topics.
func StateIDFromSetTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[3] != setSuffix {
		return "", false
	}
	for _, p := range parts[:3] {
		if p == "" {
			return "", false
		}
	}
	return strings.Join(parts[:3], "."), true
}

// EncodePayload renders strings verbatim and everything else as JSON.
func EncodePayload(val any) []byte {
	switch v := val.(type) {
	case string:
		return []byte(v)
	case nil:
		return []byte("null")
	}
	b, err := json.Marshal(val)
	if err != nil {
		return []byte(strconv.Quote(err.Error()))
	}
	return b
}

// DecodePayload reads booleans and numbers, anything else is text.
func DecodePayload(payload []byte) any {
	s := strings.TrimSpace(string(payload))
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !isHexCode(s) {
		return f
	}
	return s
}

// isHexCode keeps two digit command codes like "11" or "00" textual.
func isHexCode(s string) bool {
	return len(s) == 2 && s[0] != '-' && s[0] != '+'
}
