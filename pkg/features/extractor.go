package features

import (
	"fmt"
	"sort"
	"strings"
)

// Well-known entity feature keys consumed by the extractor.
const (
	KeyCategory = "category"
	KeySender   = "sender"
	KeyListID   = "list_id"
	KeySubject  = "subject"
)

// DefaultTokens is the fixed token set matched against the entity's text
// field. Tokens are matched case-insensitively as substrings.
var DefaultTokens = []string{
	"unsubscribe",
	"invoice",
	"receipt",
	"newsletter",
	"urgent",
	"sale",
}

// Extractor produces normalized feature names from an entity feature map.
//
// Vocabulary:
//   - category:<c>        from the "category" feature
//   - sender_domain:<d>   domain of the "sender" address, lower-cased
//   - list_id:<id>        from the "list_id" feature
//   - contains:<token>    for each configured token present in "subject"
type Extractor struct {
	tokens []string
}

// NewExtractor creates an extractor with the given token set.
// A nil or empty token set falls back to DefaultTokens.
func NewExtractor(tokens []string) *Extractor {
	if len(tokens) == 0 {
		tokens = DefaultTokens
	}
	return &Extractor{tokens: tokens}
}

// Extract returns the sorted list of features present on the entity.
// Extraction is deterministic: identical inputs yield identical output,
// in identical order.
func (e *Extractor) Extract(entity map[string]any) []string {
	var out []string

	if category, ok := stringFeature(entity, KeyCategory); ok {
		out = append(out, "category:"+strings.ToLower(category))
	}

	if domain, ok := senderDomain(entity); ok {
		out = append(out, "sender_domain:"+domain)
	}

	if listID, ok := stringFeature(entity, KeyListID); ok {
		out = append(out, "list_id:"+listID)
	}

	if subject, ok := stringFeature(entity, KeySubject); ok {
		lower := strings.ToLower(subject)
		for _, token := range e.tokens {
			if strings.Contains(lower, token) {
				out = append(out, "contains:"+token)
			}
		}
	}

	sort.Strings(out)
	return out
}

// senderDomain extracts the lower-cased domain from the sender address.
// A bare domain (no "@") is accepted as-is.
func senderDomain(entity map[string]any) (string, bool) {
	sender, ok := stringFeature(entity, KeySender)
	if !ok {
		return "", false
	}
	sender = strings.ToLower(strings.TrimSpace(sender))
	if sender == "" {
		return "", false
	}
	if at := strings.LastIndex(sender, "@"); at >= 0 {
		domain := sender[at+1:]
		if domain == "" {
			return "", false
		}
		return domain, true
	}
	return sender, true
}

func stringFeature(entity map[string]any, key string) (string, bool) {
	v, ok := entity[key]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			return "", false
		}
		return s, true
	case fmt.Stringer:
		return s.String(), true
	default:
		return "", false
	}
}
