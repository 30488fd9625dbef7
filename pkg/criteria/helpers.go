package criteria

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// helperRegexCache caches compiled helper patterns; an invalid pattern is
// cached as a nil entry so it is rejected once, not recompiled per call.
var helperRegexCache sync.Map // string -> *regexp.Regexp or nil

func compileHelperPattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := helperRegexCache.Load(pattern); ok {
		if cached == nil {
			return nil, nil
		}
		re, _ := cached.(*regexp.Regexp)
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		helperRegexCache.Store(pattern, nil)
		return nil, err
	}
	helperRegexCache.Store(pattern, re)
	return re, nil
}

func helperHas(container, item any) bool {
	switch c := container.(type) {
	case nil:
		return false
	case string:
		return strings.Contains(c, helperStr(item))
	case []any:
		for _, v := range c {
			if looseEqual(v, item) {
				return true
			}
		}
		return false
	case []string:
		needle := helperStr(item)
		for _, v := range c {
			if v == needle {
				return true
			}
		}
		return false
	case map[string]any:
		_, ok := c[helperStr(item)]
		return ok
	case map[string]string:
		_, ok := c[helperStr(item)]
		return ok
	default:
		return strings.Contains(helperStr(container), helperStr(item))
	}
}

func helperHasPrefix(s, prefix any) bool {
	return strings.HasPrefix(helperStr(s), helperStr(prefix))
}

func helperHasSuffix(s, suffix any) bool {
	return strings.HasSuffix(helperStr(s), helperStr(suffix))
}

func helperRegexTest(pattern, s any) bool {
	re, err := compileHelperPattern(helperStr(pattern))
	if err != nil || re == nil {
		return false
	}
	return re.MatchString(helperStr(s))
}

func helperEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	case map[string]string:
		return len(val) == 0
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
			return rv.Len() == 0
		}
		return false
	}
}

func helperSize(v any) int {
	switch val := v.(type) {
	case nil:
		return 0
	case string:
		return len(val)
	case []any:
		return len(val)
	case []string:
		return len(val)
	case map[string]any:
		return len(val)
	case map[string]string:
		return len(val)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
			return rv.Len()
		}
		return 0
	}
}

func helperFirst(v any) any {
	switch val := v.(type) {
	case []any:
		if len(val) > 0 {
			return val[0]
		}
	case []string:
		if len(val) > 0 {
			return val[0]
		}
	case string:
		if val != "" {
			return string(val[0])
		}
	}
	return nil
}

func helperLast(v any) any {
	switch val := v.(type) {
	case []any:
		if len(val) > 0 {
			return val[len(val)-1]
		}
	case []string:
		if len(val) > 0 {
			return val[len(val)-1]
		}
	case string:
		if val != "" {
			return string(val[len(val)-1])
		}
	}
	return nil
}

// helperNum coerces a value to a float64, returning 0 when no sensible
// numeric reading exists.
func helperNum(v any) float64 {
	f, _ := toFloat(v)
	return f
}

func helperStr(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func helperIsString(v any) bool {
	_, ok := v.(string)
	return ok
}

func helperIsNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func helperIsBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// looseEqual compares two values numerically when both coerce to numbers,
// otherwise by string form. Keeps JSON body comparisons (float64) compatible
// with literal ints in expressions.
func looseEqual(a, b any) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		return fa == fb
	}
	return helperStr(a) == helperStr(b)
}
