package trainer

import (
	"strings"
	"testing"
)

func TestSplitByRunesShortInput(t *testing.T) {
	out := splitByRunes("短文本", 10, 0)
	if len(out) != 1 || out[0] != "短文本" {
		t.Fatalf("短输入应原样返回: %v", out)
	}
}

func TestSplitByRunesEmpty(t *testing.T) {
	if out := splitByRunes("   ", 10, 0); out != nil {
		t.Fatalf("空输入应返回 nil: %v", out)
	}
}

func TestSplitByRunesChunking(t *testing.T) {
	s := strings.Repeat("a", 10)
	out := splitByRunes(s, 4, 0)
	if len(out) != 3 {
		t.Fatalf("应分为 3 块，得到 %d", len(out))
	}
	if out[2] != "aa" {
		t.Fatalf("末块应为剩余内容: %q", out[2])
	}
}

// 多字节字符按 rune 计数，不会截断
func TestSplitByRunesMultibyte(t *testing.T) {
	s := strings.Repeat("中", 7)
	out := splitByRunes(s, 3, 0)
	if len(out) != 3 {
		t.Fatalf("应分为 3 块，得到 %d", len(out))
	}
	for _, chunk := range out[:2] {
		if len([]rune(chunk)) != 3 {
			t.Fatalf("块长度错误: %q", chunk)
		}
	}
}

func TestSplitByRunesOverlap(t *testing.T) {
	out := splitByRunes("abcdef", 4, 2)
	if len(out) != 2 {
		t.Fatalf("应分为 2 块，得到 %d", len(out))
	}
	if out[0] != "abcd" || out[1] != "cdef" {
		t.Fatalf("重叠分块错误: %v", out)
	}
}
