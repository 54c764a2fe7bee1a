package token

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	xerrors "NOLA-Exchange/internal/errors"
)

// DefaultDecimals 是代币列表缺失精度时使用的默认值。
const DefaultDecimals = 18

// Token 描述一个链上代币。地址统一保存为小写形式。
type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int32  `json:"decimals"`
	LogoURI  string `json:"logoURI,omitempty"`
}

// NormalizeAddress 校验 20 字节十六进制地址并转为小写规范形式。
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", xerrors.InvalidInput("address", "地址不能为空")
	}
	if !common.IsHexAddress(addr) {
		return "", xerrors.InvalidInput("address", "非法的地址: "+addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// SameAddress 忽略大小写比较两个地址。
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// ParseAmount 把十进制整数字符串解析为正的原始数量。
func ParseAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, xerrors.InvalidInput("amount", "数量必须是十进制整数: "+raw)
	}
	if amount.Sign() <= 0 {
		return nil, xerrors.InvalidInput("amount", "数量必须为正数")
	}
	return amount, nil
}

// ParseUnits 将人类可读数量按精度转换为原始整数单位，多余的小数位被截断。
func ParseUnits(human string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(human))
	if err != nil {
		return nil, xerrors.InvalidInput("amount", "无法解析数量: "+human)
	}
	raw := d.Shift(decimals).Truncate(0)
	if raw.Sign() <= 0 {
		return nil, xerrors.InvalidInput("amount", "数量必须为正数")
	}
	return raw.BigInt(), nil
}

// FormatUnits 将原始整数单位转换为人类可读的十进制字符串。
func FormatUnits(raw *big.Int, decimals int32) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -decimals).String()
}

// ScaleToFloat 返回 raw / 10^decimals 的浮点值，用于价格换算。
func ScaleToFloat(raw *big.Int, decimals int32) float64 {
	if raw == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(raw, -decimals).Float64()
	return f
}

// OneUnit 返回 10^decimals，即一个完整代币的原始数量。
func OneUnit(decimals int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
