package processor

import (
	"regexp"
	"strings"
	"sync"

	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/internal/compliance/regexmap"
	"github.com/blociq/blociq-backend/pkg/logger"
)

// Match is one pattern hit with the page it occurred on.
type Match struct {
	Value string
	Page  int
}

// Matcher applies rule-set patterns to paged text. Compiled expressions are
// cached per flag set and pattern; patterns that fail to compile are logged
// once and skipped on every later use.
type Matcher struct {
	log *logger.Logger

	mu      sync.RWMutex
	cache   map[string]*regexp.Regexp
	invalid map[string]error
}

// NewMatcher creates a matcher.
func NewMatcher(log *logger.Logger) *Matcher {
	return &Matcher{
		log:     log,
		cache:   make(map[string]*regexp.Regexp),
		invalid: make(map[string]error),
	}
}

// Expand resolves macros in a single configured pattern. A pattern that is
// exactly a macro token becomes the macro's list; inline references become a
// non-capturing alternation.
func Expand(defaults regexmap.Defaults, pattern string) []string {
	switch pattern {
	case regexmap.MacroUKDates:
		return defaults.UKDatePatterns
	case regexmap.MacroCurrency:
		return defaults.CurrencyPatterns
	}
	if strings.Contains(pattern, "${") {
		pattern = strings.ReplaceAll(pattern, regexmap.InlineUKDates, alternation(defaults.UKDatePatterns))
		pattern = strings.ReplaceAll(pattern, regexmap.InlineCurrency, alternation(defaults.CurrencyPatterns))
	}
	return []string{pattern}
}

func alternation(patterns []string) string {
	return "(?:" + strings.Join(patterns, "|") + ")"
}

// flagPrefix turns JavaScript-style flags into an RE2 flag group. "g" is
// implied because every match is collected.
func flagPrefix(flags string) string {
	var b strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			b.WriteRune(f)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "(?" + b.String() + ")"
}

func (m *Matcher) compile(flags, pattern string) (*regexp.Regexp, bool) {
	key := flagPrefix(flags) + pattern

	m.mu.RLock()
	re, ok := m.cache[key]
	_, bad := m.invalid[key]
	m.mu.RUnlock()
	if ok {
		return re, true
	}
	if bad {
		return nil, false
	}

	re, err := regexp.Compile(key)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		if _, logged := m.invalid[key]; !logged {
			m.invalid[key] = err
			m.log.Warn().Err(err).Str("pattern", pattern).Msg("skipping invalid pattern")
		}
		return nil, false
	}
	m.cache[key] = re
	return re, true
}

// Match applies patterns, after macro expansion, to each page independently.
// Results are ordered by pattern, then page, then position. The value of a
// hit is its first capture group when that group participated, otherwise the
// whole match; surrounding whitespace is trimmed and empty values dropped.
func (m *Matcher) Match(defaults regexmap.Defaults, flags string, patterns []string, pages []domain.Page) []Match {
	var out []Match
	for _, configured := range patterns {
		for _, pattern := range Expand(defaults, configured) {
			re, ok := m.compile(flags, pattern)
			if !ok {
				continue
			}
			for _, page := range pages {
				out = appendMatches(out, re, page)
			}
		}
	}
	return out
}

// Count returns the number of hits Match would return.
func (m *Matcher) Count(defaults regexmap.Defaults, flags string, patterns []string, pages []domain.Page) int {
	return len(m.Match(defaults, flags, patterns, pages))
}

func appendMatches(out []Match, re *regexp.Regexp, page domain.Page) []Match {
	grouped := re.NumSubexp() > 0
	for _, loc := range re.FindAllStringSubmatchIndex(page.Text, -1) {
		start, end := loc[0], loc[1]
		if grouped && loc[2] >= 0 {
			start, end = loc[2], loc[3]
		}
		value := strings.TrimSpace(page.Text[start:end])
		if value == "" {
			continue
		}
		out = append(out, Match{Value: value, Page: page.Page})
	}
	return out
}
