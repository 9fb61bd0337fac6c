// Package tokens 提供模型 token 计数能力
package tokens

import (
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

var (
	once sync.Once
	enc  *tiktoken.Tiktoken
)

// encoder 懒加载 cl100k_base 编码器；加载失败时返回 nil，由调用方退化为估算
func encoder() *tiktoken.Tiktoken {
	once.Do(func() {
		e, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			return
		}
		enc = e
	})
	return enc
}

// Count 计算文本的 token 数量。
// 编码器不可用时（如离线环境首次加载 BPE 失败）退化为字符估算。
func Count(text string) int {
	if text == "" {
		return 0
	}
	if e := encoder(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return estimate(text)
}

// CountAll 计算多段文本的 token 总数
func CountAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += Count(t)
	}
	return total
}

// estimate 粗略估算：CJK 字符按 1 token，其余按 4 字符 1 token
func estimate(text string) int {
	cjk := 0
	other := 0
	for _, r := range text {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			cjk++
		} else {
			other++
		}
	}
	n := cjk + (other+3)/4
	if n == 0 {
		n = 1
	}
	return n
}
