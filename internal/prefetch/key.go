// internal/prefetch/key.go
package prefetch

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Params are the arguments a route's data depends on
type Params map[string]any

// DataCacheKey derives the cache key for a route's data. Params are sorted
// by name so equal maps always produce the same key.
func DataCacheKey(route string, params Params) string {
	if len(params) == 0 {
		return "data:" + route
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("data:")
	b.WriteString(route)
	b.WriteByte('?')
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(formatParam(params[name]))
	}
	return b.String()
}

// formatParam renders numbers in plain decimal so a JSON-decoded float64
// and the same value from a query string produce one key.
func formatParam(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
