package trainer

import (
	"context"
	"strings"
	"testing"
)

// stubChat 可编程的对话模型桩
type stubChat struct {
	content      string
	err          error
	window       int
	gotSystem    string
	gotUser      string
	gotMaxTokens int
}

func (s *stubChat) Complete(_ context.Context, _, system, user string, maxTokens int, _ string) (*Completion, error) {
	s.gotSystem = system
	s.gotUser = user
	s.gotMaxTokens = maxTokens
	if s.err != nil {
		return nil, s.err
	}
	return &Completion{Content: s.content, PromptTokens: 10, CompletionTokens: 20}, nil
}

func (s *stubChat) ContextTokens(string) int { return s.window }

func (s *stubChat) DefaultModel() string { return "gpt-3.5-turbo-16k" }

func TestParseQAPairs(t *testing.T) {
	content := "Q1: 什么是知识库？\nA1: 存放文档的地方。\nQ2: 如何训练？\nA2: 推送文本块即可。"
	pairs := parseQAPairs(content)
	if len(pairs) != 2 {
		t.Fatalf("应解析出 2 对，得到 %d", len(pairs))
	}
	if pairs[0].Q != "什么是知识库？" || pairs[0].A != "存放文档的地方。" {
		t.Fatalf("首对解析错误: %+v", pairs[0])
	}
}

// 末对缺少答案标记时只保留完整的问答对
func TestParseQAPairsIncompleteTail(t *testing.T) {
	content := "Q1:\nWhat is X?\nA1:\nX is Y\nQ2:\nincomplete question without answer"
	pairs := parseQAPairs(content)
	if len(pairs) != 1 {
		t.Fatalf("应只保留 1 对，得到 %d", len(pairs))
	}
	if pairs[0].Q != "What is X?" || pairs[0].A != "X is Y" {
		t.Fatalf("解析错误: %+v", pairs[0])
	}
}

// 中文冒号标记同样可解析
func TestParseQAPairsChineseColon(t *testing.T) {
	content := "Q1：问题一\nA1：答案一"
	pairs := parseQAPairs(content)
	if len(pairs) != 1 {
		t.Fatalf("中文冒号应可解析，得到 %d 对", len(pairs))
	}
}

func TestParseQAPairsEmptyContentDropped(t *testing.T) {
	content := "Q1: \nA1: \nQ2: 有效问题\nA2: 有效答案"
	pairs := parseQAPairs(content)
	if len(pairs) != 1 {
		t.Fatalf("空问答应丢弃，得到 %d 对", len(pairs))
	}
	if pairs[0].Q != "有效问题" {
		t.Fatalf("解析错误: %+v", pairs[0])
	}
}

func TestSplitParsesResponse(t *testing.T) {
	chat := &stubChat{content: "Q1: 问\nA1: 答", window: 16384}
	s := NewQASplitter(chat, 500, 1000)

	result, err := s.Split(context.Background(), "gpt-3.5-turbo-16k", "原始文本", "", "")
	if err != nil {
		t.Fatalf("拆分失败: %v", err)
	}
	if result.Fallback {
		t.Fatalf("正常响应不应走兜底")
	}
	if len(result.Pairs) != 1 {
		t.Fatalf("应得到 1 对，得到 %d", len(result.Pairs))
	}
	if result.PromptTokens != 10 || result.CompletionTokens != 20 {
		t.Fatalf("token 统计错误: %+v", result)
	}
	if !strings.Contains(chat.gotSystem, "Q1") {
		t.Fatalf("应使用默认提示词")
	}
}

// 模型响应不符合协议时退化为机械分块，内容不丢失
func TestSplitFallbackOnUnparseableResponse(t *testing.T) {
	chat := &stubChat{content: "这是一段完全不符合格式的响应", window: 16384}
	s := NewQASplitter(chat, 4, 1000)

	text := "abcdefghij"
	result, err := s.Split(context.Background(), "gpt-4", text, "", "")
	if err != nil {
		t.Fatalf("拆分失败: %v", err)
	}
	if !result.Fallback {
		t.Fatalf("应标记为兜底")
	}
	var joined strings.Builder
	for _, pair := range result.Pairs {
		if pair.A != "" {
			t.Fatalf("兜底块答案应为空")
		}
		joined.WriteString(pair.Q)
	}
	if joined.String() != text {
		t.Fatalf("兜底分块应保留全部内容: %q", joined.String())
	}
}

func TestSplitCustomPromptOverride(t *testing.T) {
	chat := &stubChat{content: "Q1: q\nA1: a", window: 8192}
	s := NewQASplitter(chat, 500, 1000)

	if _, err := s.Split(context.Background(), "gpt-4", "文本", "自定义提示词", ""); err != nil {
		t.Fatalf("拆分失败: %v", err)
	}
	if chat.gotSystem != "自定义提示词" {
		t.Fatalf("应使用自定义提示词，实际: %q", chat.gotSystem)
	}
}

// 响应预算不低于下限，上下文未知时直接用下限
func TestCompletionBudgetFloor(t *testing.T) {
	chat := &stubChat{window: 0}
	s := NewQASplitter(chat, 500, 1000)
	if got := s.completionBudget("unknown", "p", "t"); got != 1000 {
		t.Fatalf("未知模型应用下限 1000，得到 %d", got)
	}

	chat.window = 100
	if got := s.completionBudget("small", "prompt", strings.Repeat("长", 500)); got != 1000 {
		t.Fatalf("预算不足时应抬到下限，得到 %d", got)
	}
}
