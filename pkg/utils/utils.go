package utils

import (
	"github.com/shopspring/decimal"
)

// IsUnixSeconds 检查时间戳是否为秒级
func IsUnixSeconds(ts int64) bool {
	// 定义时间戳范围：1970-01-01 到 2100-01-01
	const maxUnix = 4_102_444_800 // 2100-01-01 00:00:00 UTC
	return ts >= 0 && ts < maxUnix
}

// NormalizeUnixSeconds 将毫秒级时间戳统一转为秒级
func NormalizeUnixSeconds(ts int64) int64 {
	if IsUnixSeconds(ts) {
		return ts
	}
	return ts / 1000
}

// RawAmountToDecimal 按精度调整链上原始数量
func RawAmountToDecimal(raw string, decimals uint8) decimal.Decimal {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return v.Shift(-int32(decimals))
}

// LamportsToSol lamports -> SOL
func LamportsToSol(lamports int64) decimal.Decimal {
	return decimal.New(lamports, -9)
}
