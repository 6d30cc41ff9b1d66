package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// IsNull reports whether a value is null. NaN floats count as null.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

// IsBlank reports whether a value is null or a whitespace-only string.
func IsBlank(v any) bool {
	if IsNull(v) {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	if b, ok := v.([]byte); ok {
		return strings.TrimSpace(string(b)) == ""
	}
	return false
}

// NormalizeValue produces a comparison token for a value. Numerically equal
// integers and floats share a token; strings and numbers never collide.
func NormalizeValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "\x00null"
	case string:
		return "s:" + x
	case []byte:
		return "s:" + string(x)
	case bool:
		return "b:" + strconv.FormatBool(x)
	case int:
		return "n:" + strconv.FormatInt(int64(x), 10)
	case int8:
		return "n:" + strconv.FormatInt(int64(x), 10)
	case int16:
		return "n:" + strconv.FormatInt(int64(x), 10)
	case int32:
		return "n:" + strconv.FormatInt(int64(x), 10)
	case int64:
		return "n:" + strconv.FormatInt(x, 10)
	case uint:
		return "n:" + strconv.FormatUint(uint64(x), 10)
	case uint8:
		return "n:" + strconv.FormatUint(uint64(x), 10)
	case uint16:
		return "n:" + strconv.FormatUint(uint64(x), 10)
	case uint32:
		return "n:" + strconv.FormatUint(uint64(x), 10)
	case uint64:
		return "n:" + strconv.FormatUint(x, 10)
	case float32:
		return normalizeFloat(float64(x))
	case float64:
		return normalizeFloat(x)
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("x:%T:%v", v, v)
	}
}

func normalizeFloat(f float64) string {
	if math.IsNaN(f) {
		return "\x00null"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return "n:" + strconv.FormatInt(int64(f), 10)
	}
	return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
}

// RowKey builds a composite key from the values at idx. hasNull is true
// when any of those values is null.
func RowKey(row []any, idx []int) (key string, hasNull bool) {
	var sb strings.Builder
	for i, c := range idx {
		if i > 0 {
			sb.WriteByte('\x1f')
		}
		if IsNull(row[c]) {
			hasNull = true
		}
		sb.WriteString(NormalizeValue(row[c]))
	}
	return sb.String(), hasNull
}

// FormatKey renders key values for messages, e.g. "(1, 'a')".
func FormatKey(row []any, idx []int) string {
	parts := make([]string, len(idx))
	for i, c := range idx {
		switch v := row[c].(type) {
		case nil:
			parts[i] = "null"
		case string:
			parts[i] = "'" + v + "'"
		default:
			parts[i] = fmt.Sprintf("%v", v)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// DuplicateKeyCount returns how many rows repeat an earlier non-null key on the given columns.
func DuplicateKeyCount(t *Table, columns []string) (int, error) {
	idx, err := t.ColumnIndexes(columns)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(t.Rows))
	dups := 0
	for _, row := range t.Rows {
		key, hasNull := RowKey(row, idx)
		if hasNull {
			continue
		}
		if seen[key] {
			dups++
			continue
		}
		seen[key] = true
	}
	return dups, nil
}
