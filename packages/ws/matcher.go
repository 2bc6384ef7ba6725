package ws

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Matcher selects messages for WaitForMessage and FindMessages. Matchers run
// while the session is locked and must not call back into the session.
type Matcher func(Message) bool

// MatchAny matches every message
func MatchAny() Matcher {
	return func(Message) bool { return true }
}

// MatchKind matches messages of the given frame kind
func MatchKind(kind MessageKind) Matcher {
	return func(m Message) bool { return m.Kind == kind }
}

// MatchText matches data messages whose payload contains substr
func MatchText(substr string) Matcher {
	return func(m Message) bool {
		if m.Kind != KindText && m.Kind != KindBinary {
			return false
		}
		return strings.Contains(string(m.Payload), substr)
	}
}

// MatchJSON matches messages whose JSON payload has want at the gjson path.
// A nil want matches an explicit JSON null.
func MatchJSON(path string, want any) Matcher {
	return func(m Message) bool {
		if !gjson.ValidBytes(m.Payload) {
			return false
		}
		res := gjson.GetBytes(m.Payload, path)
		if !res.Exists() {
			return false
		}
		return jsonEquals(res, want)
	}
}

// MatchJSONExists matches messages whose JSON payload has any value at path
func MatchJSONExists(path string) Matcher {
	return func(m Message) bool {
		return gjson.ValidBytes(m.Payload) && gjson.GetBytes(m.Payload, path).Exists()
	}
}

// MatchAll matches when every matcher matches
func MatchAll(matchers ...Matcher) Matcher {
	return func(m Message) bool {
		for _, match := range matchers {
			if !match(m) {
				return false
			}
		}
		return true
	}
}

func jsonEquals(res gjson.Result, want any) bool {
	switch w := want.(type) {
	case nil:
		return res.Type == gjson.Null
	case string:
		return res.Type == gjson.String && res.Str == w
	case bool:
		return (res.Type == gjson.True || res.Type == gjson.False) && res.Bool() == w
	case int:
		return res.Type == gjson.Number && res.Num == float64(w)
	case int64:
		return res.Type == gjson.Number && res.Num == float64(w)
	case float64:
		return res.Type == gjson.Number && res.Num == w
	default:
		return res.String() == fmt.Sprint(w)
	}
}
