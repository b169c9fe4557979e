// Package intent classifies an incoming Request into an Intent: the
// high-level goal category that drives agent-kind selection and planning
// depth downstream. Two implementations are provided: a fast bilingual
// keyword heuristic (grounded on the tool-router's ClassifyIntent) and a
// model-backed classifier for cases the heuristic is unsure about.
package intent

import (
	"context"
	"strings"
)

// Kind is the closed set of request intents this kernel plans against.
type Kind string

const (
	Planning    Kind = "planning"
	Coding      Kind = "coding"
	Review      Kind = "review"
	Explore     Kind = "explore"
	Test        Kind = "test"
	Refactor    Kind = "refactor"
	Explain     Kind = "explain"
	Docs        Kind = "docs"
	Security    Kind = "security"
	Performance Kind = "performance"
	Data        Kind = "data"
	Chat        Kind = "chat"
)

// Intent is the immutable result of classification.
type Intent struct {
	Kind       Kind
	Confidence float64
	Reasoning  string
}

// Classifier maps a request to an Intent. ctx is honored by classifiers that
// make a network call (ModelClassifier); HeuristicClassifier ignores it.
type Classifier interface {
	Classify(ctx context.Context, userText string) Intent
}

// HeuristicClassifier is a zero-dependency bilingual keyword matcher. It is
// the default classifier and the fallback when a ModelClassifier's
// confidence is too low to trust.
type HeuristicClassifier struct{}

func NewHeuristicClassifier() *HeuristicClassifier { return &HeuristicClassifier{} }

func (HeuristicClassifier) Classify(_ context.Context, userText string) Intent {
	s := strings.ToLower(strings.TrimSpace(userText))
	if s == "" {
		return Intent{Kind: Chat, Confidence: 0.3, Reasoning: "empty input"}
	}
	tokens := tokenize(s)

	type rule struct {
		kind     Kind
		reason   string
		keywords []string
		tokens   []string
	}
	rules := []rule{
		{Security, "security vocabulary", []string{
			"vulnerability", "cve", "exploit", "injection", "xss", "csrf", "secrets", "credential",
			"漏洞", "安全隐患", "注入", "越权", "泄露", "凭证",
		}, []string{"auth", "sanitize", "escape", "privilege"}},
		{Test, "testing vocabulary", []string{
			"write a test", "unit test", "add tests", "test coverage", "failing test",
			"写测试", "单元测试", "补充测试", "测试覆盖率",
		}, []string{"pytest", "jest", "testify"}},
		{Refactor, "refactor vocabulary", []string{
			"refactor", "clean up", "simplify", "extract method", "rename", "restructure",
			"重构", "简化", "提取方法", "重命名",
		}, nil},
		{Performance, "performance vocabulary", []string{
			"slow", "latency", "optimize", "performance", "bottleneck", "profile", "memory leak",
			"性能", "慢", "瓶颈", "优化", "内存泄漏",
		}, nil},
		{Docs, "documentation vocabulary", []string{
			"write docs", "documentation", "readme", "docstring", "changelog",
			"写文档", "文档", "说明书",
		}, nil},
		{Review, "review vocabulary", []string{
			"review this", "code review", "pr feedback", "look over my changes",
			"代码评审", "审查代码", "看一下我的改动",
		}, nil},
		{Data, "data vocabulary", []string{
			"sql", "schema", "migration", "dataset", "etl", "query plan", "database",
			"数据库", "迁移脚本", "数据集",
		}, nil},
		{Explain, "explanation vocabulary", []string{
			"explain", "what does this do", "how does this work", "walk me through",
			"解释", "这段代码是做什么", "这是怎么运作的",
		}, nil},
		{Planning, "planning vocabulary", []string{
			"plan", "design", "architecture", "break down", "roadmap", "rfc",
			"规划", "设计方案", "架构设计", "拆分任务",
		}, []string{"design", "architecture"}},
		{Explore, "exploration vocabulary", []string{
			"find", "where is", "search for", "look for", "locate",
			"查找", "在哪里", "搜索",
		}, nil},
		{Coding, "coding vocabulary", []string{
			"implement", "add a feature", "fix the bug", "write a function", "build",
			"实现", "新增功能", "修复bug", "编写函数",
		}, []string{"implement", "build", "fix"}},
	}

	for _, r := range rules {
		if containsAny(s, r.keywords...) || containsTokenAny(tokens, r.tokens...) {
			return Intent{Kind: r.kind, Confidence: 0.75, Reasoning: r.reason}
		}
	}

	return Intent{Kind: Coding, Confidence: 0.4, Reasoning: "no strong keyword match; defaulting to coding"}
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return !(r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
	for _, p := range parts {
		if p != "" {
			out[p] = true
		}
	}
	return out
}

func containsTokenAny(tokens map[string]bool, keywords ...string) bool {
	for _, kw := range keywords {
		if kw != "" && tokens[kw] {
			return true
		}
	}
	return false
}
