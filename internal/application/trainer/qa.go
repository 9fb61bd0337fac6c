package trainer

import (
	"context"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fastgpt-training/pkg/logger"
	"fastgpt-training/pkg/tokens"
)

var qaTracer = otel.Tracer("trainer.qa")

// defaultQAPrompt QA 拆分默认提示词
const defaultQAPrompt = `我会给你一段文本，学习它们，并整理学习成果，要求为：
1. 提出最多 25 个问题。
2. 给出每个问题的答案。
3. 答案要详细完整，答案可以包含普通文字、链接、代码、表格、公示、媒体链接等 markdown 元素。
4. 按格式返回多个问题和答案:

Q1: 问题。
A1: 答案。
Q2:
A2:
……

我的文本：`

var (
	// qMarkPattern 匹配 Q1: / Q2： 等问题标记
	qMarkPattern = regexp.MustCompile(`(?m)Q\d+[:：]`)
	// aMarkPattern 匹配块内第一个 A1: / A1： 等答案标记
	aMarkPattern = regexp.MustCompile(`A\d+[:：]`)
)

// SplitResult QA 拆分结果
type SplitResult struct {
	Pairs            []QAPair
	PromptTokens     int
	CompletionTokens int
	// Fallback 协议解析失败、退化为机械分块时为 true
	Fallback bool
}

// QASplitter QA 拆分器，调用对话模型把原始文本整理为问答对
type QASplitter struct {
	chat                ChatCompleter
	fallbackChunkSize   int
	minCompletionTokens int
}

// NewQASplitter 创建 QA 拆分器
func NewQASplitter(chat ChatCompleter, fallbackChunkSize, minCompletionTokens int) *QASplitter {
	if fallbackChunkSize <= 0 {
		fallbackChunkSize = 500
	}
	if minCompletionTokens <= 0 {
		minCompletionTokens = 1000
	}
	return &QASplitter{
		chat:                chat,
		fallbackChunkSize:   fallbackChunkSize,
		minCompletionTokens: minCompletionTokens,
	}
}

// Split 将文本拆分为问答对。
// customPrompt 非空时替换默认提示词；模型响应不符合 QA 协议时
// 退化为机械分块，答案留空，保证内容不丢失。
func (s *QASplitter) Split(ctx context.Context, model, text, customPrompt, userKey string) (*SplitResult, error) {
	ctx, span := qaTracer.Start(ctx, "trainer.QASplitter.Split",
		trace.WithAttributes(attribute.String("model", model)))
	defer span.End()

	prompt := defaultQAPrompt
	if customPrompt != "" {
		prompt = customPrompt
	}

	maxTokens := s.completionBudget(model, prompt, text)

	completion, err := s.chat.Complete(ctx, model, prompt, text, maxTokens, userKey)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &SplitResult{
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
	}

	result.Pairs = parseQAPairs(completion.Content)
	if len(result.Pairs) == 0 {
		// 协议解析失败，机械分块兜底
		result.Fallback = true
		for _, chunk := range splitByRunes(text, s.fallbackChunkSize, 0) {
			result.Pairs = append(result.Pairs, QAPair{Q: chunk})
		}
		logger.Warn(ctx, "qa response unparseable, fell back to mechanical split",
			"model", model,
			"chunks", len(result.Pairs),
		)
	}

	span.SetAttributes(
		attribute.Int("pair_count", len(result.Pairs)),
		attribute.Bool("fallback", result.Fallback),
	)
	return result, nil
}

// completionBudget 计算响应 token 预算：上下文窗口减去输入占用
func (s *QASplitter) completionBudget(model, prompt, text string) int {
	window := s.chat.ContextTokens(model)
	if window <= 0 {
		return s.minCompletionTokens
	}

	budget := window - tokens.CountAll(prompt, text)
	if budget < s.minCompletionTokens {
		budget = s.minCompletionTokens
	}
	return budget
}

// parseQAPairs 解析模型响应中的问答对。
// 以 Q 标记切块，每块内找第一个 A 标记；缺少标记或内容为空的块丢弃。
func parseQAPairs(content string) []QAPair {
	marks := qMarkPattern.FindAllStringIndex(content, -1)
	if len(marks) == 0 {
		return nil
	}

	var pairs []QAPair
	for i, mark := range marks {
		blockStart := mark[1]
		blockEnd := len(content)
		if i+1 < len(marks) {
			blockEnd = marks[i+1][0]
		}
		block := content[blockStart:blockEnd]

		aMark := aMarkPattern.FindStringIndex(block)
		if aMark == nil {
			continue
		}

		q := strings.TrimSpace(block[:aMark[0]])
		a := strings.TrimSpace(block[aMark[1]:])
		if q == "" || a == "" {
			continue
		}

		pairs = append(pairs, QAPair{Q: q, A: a})
	}
	return pairs
}
