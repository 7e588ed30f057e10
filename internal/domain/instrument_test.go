package domain

import "testing"

// 键的字符串形式要能无损往返（tick 缓存的持久化键依赖这一点）
func TestParseKeyRoundTrip(t *testing.T) {
	cases := []InstrumentKey{
		KeyFromSymbol("NIFTY"),
		KeyFromSymbol(" usdinr "),
		KeyFromToken(12345),
	}
	for _, k := range cases {
		got, ok := ParseKey(k.String())
		if !ok {
			t.Fatalf("ParseKey(%q) 解析失败", k.String())
		}
		if got != k {
			t.Fatalf("往返不一致: %v != %v", got, k)
		}
	}
}

func TestParseKeyRejectsInvalid(t *testing.T) {
	for _, s := range []string{"", "NIFTY", "s:", "t:", "t:abc", "t:0", "x:1"} {
		if _, ok := ParseKey(s); ok {
			t.Fatalf("ParseKey(%q) 不应成功", s)
		}
	}
}

func TestKeyPrefersSymbol(t *testing.T) {
	k := InstrumentKey{Token: 42, Symbol: "NIFTY"}
	if k.String() != "s:NIFTY" {
		t.Fatalf("symbol 已解析时应以 symbol 为键: %s", k.String())
	}
	if KeyFromToken(42).String() != "t:42" {
		t.Fatalf("无 symbol 时应以 token 为键")
	}
}
