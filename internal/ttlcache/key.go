package ttlcache

import (
	"fmt"
	"strconv"
	"strings"
)

// keySep joins key segments.
const keySep = ":"

// MakeKey composes a cache key from base and an ordered list of optional
// parts. nil values, nil pointers and empty strings are treated as "not
// supplied" and skipped; zero numbers and false are real filter values and
// are kept.
//
//	MakeKey("tx", "0xabc", 5)   == "tx:0xabc:5"
//	MakeKey("tx", nil, 5)       == MakeKey("tx", 5)
//	MakeKey("tx", "0xabc", 0)   == "tx:0xabc:0"
func MakeKey(base string, parts ...any) string {
	var b strings.Builder
	b.Grow(len(base) + 16*len(parts))
	b.WriteString(base)
	for _, p := range parts {
		seg, ok := segment(p)
		if !ok {
			continue
		}
		b.WriteString(keySep)
		b.WriteString(seg)
	}
	return b.String()
}

// segment renders one key part. The bool is false for absent parts.
func segment(p any) (string, bool) {
	switch v := p.(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	case *string:
		if v == nil {
			return "", false
		}
		return *v, *v != ""
	case int:
		return strconv.Itoa(v), true
	case *int:
		if v == nil {
			return "", false
		}
		return strconv.Itoa(*v), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case *int64:
		if v == nil {
			return "", false
		}
		return strconv.FormatInt(*v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case *uint64:
		if v == nil {
			return "", false
		}
		return strconv.FormatUint(*v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case fmt.Stringer:
		s := v.String()
		return s, s != ""
	default:
		s := fmt.Sprint(v)
		return s, s != ""
	}
}
