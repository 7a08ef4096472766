package milvus

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"cinemind/internal/domain/entity"
)

// FilterExpr 将等值过滤转换为 Milvus 布尔表达式；source_type 走标量字段，其余走 metadata JSON
func FilterExpr(filter entity.Filter) (string, error) {
	if len(filter) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		lit, err := literal(filter[k])
		if err != nil {
			return "", fmt.Errorf("filter %s: %w", k, err)
		}
		if k == fieldSourceType {
			parts = append(parts, fmt.Sprintf("%s == %s", fieldSourceType, lit))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s[%s] == %s", fieldAttrs, strconv.Quote(k), lit))
	}
	return strings.Join(parts, " && "), nil
}

// sourceExpr 单个数据源条目的全部块
func sourceExpr(st entity.SourceType, key string) string {
	return fmt.Sprintf("%s == %s && %s == %s",
		fieldSourceType, strconv.Quote(string(st)), fieldSourceKey, strconv.Quote(key))
}

// inExpr field in ["a", "b"]
func inExpr(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return fmt.Sprintf("%s in [%s]", field, strings.Join(quoted, ", "))
}

func literal(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}
