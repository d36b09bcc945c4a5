package application

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Wire shapes shared by the MQ and CEEPS exports. Pointer fields distinguish
// a missing key from an empty value.

type intervalReadingPayload struct {
	Timestamp        *string           `json:"timestamp"`
	Value            *quantity         `json:"value"`
	ReadingQualities []json.RawMessage `json:"readingQualities"`
}

type intervalBlockPayload struct {
	IntervalReadings []intervalReadingPayload `json:"intervalReadings"`
}

type meterReadingPayload struct {
	UsagePoint     *pointID                `json:"usagePoint"`
	IntervalBlocks *[]intervalBlockPayload `json:"intervalBlocks"`
}

type mqExportPayload struct {
	MeterReadings *[]meterReadingPayload `json:"meterReadings"`
}

// quantity accepts a JSON number or a numeric string.
type quantity struct {
	value float64
	null  bool
}

func (q *quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		q.null = true
		return nil
	}
	text := string(data)
	if strings.HasPrefix(text, `"`) {
		unquoted, err := strconv.Unquote(text)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(unquoted)
		if text == "" {
			q.null = true
			return nil
		}
	}
	parsed, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("invalid value %s", string(data))
	}
	q.value = parsed
	return nil
}

// pointID accepts a usage point written as a string or a number.
type pointID string

func (p *pointID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if bytes.HasPrefix(data, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = pointID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("usagePoint must be a string or number")
	}
	*p = pointID(n.String())
	return nil
}

func (p *pointID) String() string {
	if p == nil {
		return ""
	}
	return string(*p)
}

// qualityFlags flattens readingQualities entries into strings. Entries may be
// plain strings or objects carrying a ref. Every entry yields one flag, so a
// non-empty list marks the reading even when its entries are blank or null.
func qualityFlags(raw []json.RawMessage) []string {
	flags := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			flags = append(flags, s)
			continue
		}
		var obj struct {
			Ref string `json:"ref"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.Ref != "" {
			flags = append(flags, obj.Ref)
			continue
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, item); err != nil {
			compact.Reset()
			compact.Write(bytes.TrimSpace(item))
		}
		flags = append(flags, compact.String())
	}
	return flags
}

// splitEnvelope decodes a document that is either a single object holding
// marker, or a mapping of keys to such objects. Keys are returned sorted.
func splitEnvelope(body []byte, marker string) ([]string, map[string]json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, nil, err
	}
	if len(top) == 0 {
		return nil, nil, errors.New("empty document")
	}
	if _, ok := top[marker]; ok {
		return []string{""}, map[string]json.RawMessage{"": json.RawMessage(body)}, nil
	}
	keys := make([]string, 0, len(top))
	for key := range top {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, top, nil
}
