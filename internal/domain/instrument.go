package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// InstrumentKey 标的身份的统一键
// 交易所标的用数字 token 标识，合成/加密标的用 symbol 字符串标识，
// 两者必须落在同一个 keyspace（同一张 per-instrument map），避免 token 路径
// 和 symbol 路径各维护一份状态。
type InstrumentKey struct {
	Token  uint32 // 交易所 token（0 表示无）
	Symbol string // 标的 symbol（空表示未解析）
}

// KeyFromToken 用 token 构造键（symbol 未解析时使用）
func KeyFromToken(token uint32) InstrumentKey {
	return InstrumentKey{Token: token}
}

// KeyFromSymbol 用 symbol 构造键
func KeyFromSymbol(symbol string) InstrumentKey {
	return InstrumentKey{Symbol: strings.ToUpper(strings.TrimSpace(symbol))}
}

// IsZero 检查键是否为空
func (k InstrumentKey) IsZero() bool {
	return k.Token == 0 && k.Symbol == ""
}

// String 返回键的字符串形式（map key 用）
// symbol 优先：同一标的无论事件来自 tick（token）还是 feed/signal（symbol），
// 只要 symbol 已解析就落在同一条记录上。
func (k InstrumentKey) String() string {
	if k.Symbol != "" {
		return "s:" + k.Symbol
	}
	return "t:" + strconv.FormatUint(uint64(k.Token), 10)
}

// ParseKey 解析 String() 产生的字符串形式，用于从持久化存储恢复键。
func ParseKey(s string) (InstrumentKey, bool) {
	switch {
	case strings.HasPrefix(s, "s:"):
		k := KeyFromSymbol(s[2:])
		return k, !k.IsZero()
	case strings.HasPrefix(s, "t:"):
		token, err := strconv.ParseUint(s[2:], 10, 32)
		if err != nil || token == 0 {
			return InstrumentKey{}, false
		}
		return KeyFromToken(uint32(token)), true
	default:
		return InstrumentKey{}, false
	}
}

// Display 返回展示用名称
func (k InstrumentKey) Display() string {
	if k.Symbol != "" {
		return k.Symbol
	}
	return fmt.Sprintf("token-%d", k.Token)
}

// Instrument 标的元数据（目录服务加载后只读）
type Instrument struct {
	Token    uint32  // 交易所 token
	Symbol   string  // 标的 symbol
	LotSize  float64 // 每手数量（合成标的默认 1）
	Ordering int     // 展示排序索引
}
