package sl

import "strings"

var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"secret":        {},
	"password":      {},
	"pwd":           {},
	"pass":          {},
	"access_token":  {},
	"refresh_token": {},
	"id_token":      {},
}

// IsSensitive reports whether values logged under key must be masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// Mask keeps the first and last character of long values.
func Mask(value string) string {
	if len(value) > 8 {
		return value[:1] + "****" + value[len(value)-1:]
	}
	return "****"
}
