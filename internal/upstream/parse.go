package upstream

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// PositiveInt 读取整数数量字段，字段可以是字符串或 JSON 数字。
func PositiveInt(provider string, res gjson.Result, field string) (*big.Int, *Unavailable) {
	if !res.Exists() || res.Type == gjson.Null {
		return nil, Fail(provider, ReasonMissingField, "%s missing", field)
	}
	raw := strings.TrimSpace(res.String())
	if res.Type == gjson.Number {
		raw = res.Raw
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, Fail(provider, ReasonInvalidValue, "%s is not an integer: %q", field, raw)
	}
	if n.Sign() <= 0 {
		return nil, Fail(provider, ReasonInvalidValue, "%s must be positive", field)
	}
	return n, nil
}

// OptionalInt 读取可选整数，缺失或非法时返回 nil。
func OptionalInt(res gjson.Result) *big.Int {
	if !res.Exists() || res.Type == gjson.Null {
		return nil
	}
	raw := strings.TrimSpace(res.String())
	if res.Type == gjson.Number {
		raw = res.Raw
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() < 0 {
		return nil
	}
	return n
}

// PositiveFloat 解析数字或数字字符串，仅接受正的有限值。
func PositiveFloat(res gjson.Result) (float64, bool) {
	var v float64
	switch res.Type {
	case gjson.Number:
		v = res.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(res.Str), 64)
		if err != nil {
			return 0, false
		}
		v = parsed
	default:
		return 0, false
	}
	if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
