package invalidation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/syntrixbase/warden/internal/changelog"
)

// Rule derives one cache key from a document image. Templates reference
// document fields in braces, e.g. "guild:{guild_id}:channels:{type}".
type Rule struct {
	template string
	parts    []rulePart
}

type rulePart struct {
	literal string
	field   string
}

// NewRule parses a key template.
func NewRule(template string) (Rule, error) {
	r := Rule{template: template}
	rest := template
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			r.parts = append(r.parts, rulePart{literal: rest})
			break
		}
		if open > 0 {
			r.parts = append(r.parts, rulePart{literal: rest[:open]})
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return Rule{}, fmt.Errorf("unterminated field in key template %q", template)
		}
		field := rest[open+1 : open+end]
		if field == "" {
			return Rule{}, fmt.Errorf("empty field in key template %q", template)
		}
		r.parts = append(r.parts, rulePart{field: field})
		rest = rest[open+end+1:]
	}
	if len(r.parts) == 0 {
		return Rule{}, fmt.Errorf("empty key template")
	}
	return r, nil
}

// MustRule is NewRule that panics on a malformed template.
func MustRule(template string) Rule {
	r, err := NewRule(template)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Rule) String() string {
	return r.template
}

// Key renders the key for doc. It reports false when a referenced field
// is missing or empty.
func (r Rule) Key(doc changelog.Document) (string, bool) {
	if doc == nil {
		return "", false
	}
	var b strings.Builder
	for _, p := range r.parts {
		if p.field == "" {
			b.WriteString(p.literal)
			continue
		}
		v, ok := fieldString(doc[p.field])
		if !ok {
			return "", false
		}
		b.WriteString(v)
	}
	return b.String(), true
}

type hexer interface {
	Hex() string
}

func fieldString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case hexer:
		return val.Hex(), true
	case int:
		return strconv.Itoa(val), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return strconv.FormatInt(int64(val), 10), true
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case fmt.Stringer:
		return val.String(), true
	default:
		return "", false
	}
}

// DefaultRules are the keys the bot caches per watched collection.
func DefaultRules() map[string][]Rule {
	return map[string][]Rule{
		"guild_settings": {
			MustRule("guild:{guild_id}:settings"),
		},
		"channels": {
			MustRule("channel:{_id}"),
			MustRule("guild:{guild_id}:channels"),
			MustRule("guild:{guild_id}:channels:{type}"),
		},
		"role_rules": {
			MustRule("role_rule:{_id}"),
			MustRule("guild:{guild_id}:role_rules"),
			MustRule("guild:{guild_id}:role_rules:{type}"),
		},
		"quarantine": {
			MustRule("quarantine:{guild_id}:{user_id}"),
			MustRule("guild:{guild_id}:quarantine"),
		},
		"members": {
			MustRule("member:{guild_id}:{user_id}"),
		},
	}
}

// ParseRules builds a rule table from key templates per collection.
func ParseRules(templates map[string][]string) (map[string][]Rule, error) {
	out := make(map[string][]Rule, len(templates))
	for coll, list := range templates {
		for _, tmpl := range list {
			r, err := NewRule(tmpl)
			if err != nil {
				return nil, fmt.Errorf("collection %s: %w", coll, err)
			}
			out[coll] = append(out[coll], r)
		}
	}
	return out, nil
}
