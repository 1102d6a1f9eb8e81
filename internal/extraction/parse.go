package extraction

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NoJSONFound is the sentinel Fields.Err value for replies without a JSON
// object.
const NoJSONFound = "no JSON found"

// ParseFields locates the first balanced JSON object in a model reply and
// parses it. Models often wrap the object in explanatory text or markdown
// fences; everything outside the braces is ignored. A reply with no object
// at all yields the sentinel rather than an error, so the caller treats the
// absent fields as an extraction failure downstream.
func ParseFields(text string) (*Fields, error) {
	obj, ok := firstJSONObject(text)
	if !ok {
		return &Fields{Err: NoJSONFound}, nil
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(obj), &m); err != nil {
		return nil, fmt.Errorf("unmarshaling model reply: %w", err)
	}

	return &Fields{
		MerchantName: stringField(m, "merchant_name"),
		ReceiptDate:  stringField(m, "receipt_date"),
		Amount:       stringField(m, "amount"),
		Err:          stringField(m, "error"),
	}, nil
}

// stringField reads a key as text. Models sometimes return the amount as a
// bare number despite the prompt; that is coerced instead of dropped.
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// firstJSONObject returns the first brace-balanced object in text. The scan
// is string-aware so braces inside quoted values don't end the object early.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
