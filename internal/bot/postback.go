package bot

import (
	"fmt"
	"strings"
)

// PostbackData is a decoded postback payload.
// Wire format: "module:action$param1$param2".
type PostbackData struct {
	Module string
	Action string
	Params []string
}

// ParsePostback parses a postback data string.
func ParsePostback(data string) (*PostbackData, error) {
	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid postback format: missing ':' separator")
	}

	fields := strings.Split(parts[1], PostbackSplitChar)
	if fields[0] == "" {
		return nil, fmt.Errorf("invalid postback format: missing action")
	}

	return &PostbackData{
		Module: parts[0],
		Action: fields[0],
		Params: fields[1:],
	}, nil
}

// BuildPostback encodes a postback data string in the wire format.
func BuildPostback(module, action string, params ...string) string {
	parts := append([]string{action}, params...)
	return module + ":" + strings.Join(parts, PostbackSplitChar)
}
