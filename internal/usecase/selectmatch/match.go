package selectmatch

import (
	"context"
	"regexp"
	"strings"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
)

type Tier string

const (
	TierRegex    Tier = "regex"
	TierExact    Tier = "exact"
	TierFuzzy    Tier = "fuzzy"
	TierSemantic Tier = "llm"
	TierLiteral  Tier = "literal"
)

// SemanticMatcher asks a model which option values fit the patterns.
type SemanticMatcher interface {
	MatchValues(ctx context.Context, options []entity.SelectOption, patterns []string, mem *entity.Memory) ([]string, error)
}

type Result struct {
	Values []string
	Tier   Tier
}

type Matcher struct {
	semantic SemanticMatcher
	logger   output.LoggerPort
}

// New builds a matcher. semantic may be nil, in which case the model tier is
// skipped.
func New(semantic SemanticMatcher, logger output.LoggerPort) *Matcher {
	return &Matcher{semantic: semantic, logger: logger}
}

// IsRegex reports whether a pattern should be matched as a regular expression.
func IsRegex(p string) bool {
	return strings.HasPrefix(p, "^") || strings.HasSuffix(p, "$") || strings.Contains(p, ".*")
}

// Match maps patterns onto option values, stopping at the first tier that
// yields anything. When every tier comes back empty the patterns are returned
// as they are.
func (m *Matcher) Match(ctx context.Context, options []entity.SelectOption, patterns []string, mem *entity.Memory) Result {
	if values := m.matchRegex(ctx, options, patterns); len(values) > 0 {
		return Result{Values: values, Tier: TierRegex}
	}
	if values := matchExact(options, patterns); len(values) > 0 {
		return Result{Values: values, Tier: TierExact}
	}
	if values := matchFuzzy(options, patterns); len(values) > 0 {
		return Result{Values: values, Tier: TierFuzzy}
	}
	if values := m.matchSemantic(ctx, options, patterns, mem); len(values) > 0 {
		return Result{Values: values, Tier: TierSemantic}
	}
	return Result{Values: append([]string(nil), patterns...), Tier: TierLiteral}
}

func (m *Matcher) matchRegex(ctx context.Context, options []entity.SelectOption, patterns []string) []string {
	var out []string
	for _, p := range patterns {
		if !IsRegex(p) {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			m.log(ctx).Warn("Invalid select pattern", "pattern", p, "error", err)
			continue
		}
		for _, opt := range options {
			if re.MatchString(opt.Value) || re.MatchString(opt.Label) {
				out = append(out, opt.Value)
			}
		}
	}
	return out
}

func matchExact(options []entity.SelectOption, patterns []string) []string {
	var out []string
	for _, p := range patterns {
		if IsRegex(p) {
			continue
		}
		for _, opt := range options {
			if opt.Value == p || opt.Label == p {
				out = append(out, opt.Value)
			}
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "")
}

func score(pattern, value string) int {
	switch {
	case pattern == value:
		return 100
	case strings.HasPrefix(value, pattern):
		return 80
	case strings.Contains(value, pattern):
		return 60
	}
	return 0
}

// matchFuzzy runs only when the normalized option values are pairwise
// distinct. Ties keep the first option seen.
func matchFuzzy(options []entity.SelectOption, patterns []string) []string {
	seen := make(map[string]struct{}, len(options))
	normalized := make([]string, len(options))
	for i, opt := range options {
		n := normalize(opt.Value)
		if _, dup := seen[n]; dup {
			return nil
		}
		seen[n] = struct{}{}
		normalized[i] = n
	}

	var out []string
	for _, p := range patterns {
		np := normalize(p)
		best, bestIdx := 0, -1
		for i, n := range normalized {
			if s := score(np, n); s > best {
				best, bestIdx = s, i
			}
		}
		if bestIdx >= 0 {
			out = append(out, options[bestIdx].Value)
		}
	}
	return out
}

func (m *Matcher) matchSemantic(ctx context.Context, options []entity.SelectOption, patterns []string, mem *entity.Memory) []string {
	if m.semantic == nil || len(options) == 0 {
		return nil
	}
	values, err := m.semantic.MatchValues(ctx, options, patterns, mem)
	if err != nil {
		m.log(ctx).Warn("Select value prediction failed", "patterns", patterns, "error", err)
		return nil
	}

	valid := make(map[string]struct{}, len(options))
	for _, opt := range options {
		valid[opt.Value] = struct{}{}
	}
	var out []string
	for _, v := range values {
		if _, ok := valid[v]; ok {
			out = append(out, v)
		} else {
			m.log(ctx).Debug("Discarding predicted value outside the option set", "value", v)
		}
	}
	return out
}

func (m *Matcher) log(ctx context.Context) output.LoggerPort {
	return output.LoggerFromContext(ctx, m.logger)
}
