// Package filter compiles include/exclude glob tokens into an ordered rule set
// evaluated against root-relative paths.
//
// Token syntax:
//   - "*.pdb"  include paths matching the glob
//   - "-obj"   exclude paths matching the glob
//
// Glob metacharacters: "?" matches one character, "*" matches one or more
// characters (including "/"). Every other character is literal. Patterns are
// anchored to the full relative path.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Policy selects how an ordered rule list resolves a path
type Policy string

const (
	// FirstMatch lets the first matching rule decide; unmatched paths are included
	FirstMatch Policy = "first-match"
	// FirstRule consults only the first rule: a path is included when its match
	// result equals the rule's include flag
	FirstRule Policy = "first-rule"
)

// ParsePolicy converts a config or flag value into a Policy
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FirstMatch:
		return FirstMatch, nil
	case FirstRule:
		return FirstRule, nil
	default:
		return "", fmt.Errorf("invalid filter policy: %s (valid: first-match, first-rule)", s)
	}
}

// Rule is a single compiled filter token
type Rule struct {
	Raw     string
	Pattern *regexp.Regexp
	Include bool
}

// Matches reports whether the rule's pattern matches path
func (r Rule) Matches(path string) bool {
	return r.Pattern.MatchString(path)
}

// Set is an immutable ordered list of rules. A nil Set includes everything.
type Set struct {
	rules  []Rule
	policy Policy
}

// Option configures a Set at compile time
type Option func(*Set)

// WithPolicy sets the evaluation policy
func WithPolicy(p Policy) Option {
	return func(s *Set) {
		s.policy = p
	}
}

// ParseList splits a ";"-separated token list, dropping empty entries
func ParseList(list string) []string {
	var tokens []string
	for _, tok := range strings.Split(list, ";") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// Compile builds a Set from raw tokens, keeping their order
func Compile(tokens []string, opts ...Option) (*Set, error) {
	s := &Set{policy: FirstMatch}
	for _, opt := range opts {
		opt(s)
	}

	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		rule, err := compileRule(tok)
		if err != nil {
			return nil, err
		}
		s.rules = append(s.rules, rule)
	}

	return s, nil
}

// MustCompile is like Compile but panics on error
func MustCompile(tokens []string, opts ...Option) *Set {
	s, err := Compile(tokens, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func compileRule(token string) (Rule, error) {
	include := true
	glob := token
	if strings.HasPrefix(glob, "-") {
		include = false
		glob = glob[1:]
	}
	glob = strings.ReplaceAll(glob, `\`, "/")

	var b strings.Builder
	b.WriteString("^")
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".+")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return Rule{}, fmt.Errorf("failed to compile filter %q: %w", token, err)
	}

	return Rule{Raw: token, Pattern: re, Include: include}, nil
}

// ShouldInclude reports whether a root-relative path passes the filters.
// The path must already use "/" separators.
func (s *Set) ShouldInclude(path string) bool {
	if s == nil || len(s.rules) == 0 {
		return true
	}

	path = strings.TrimLeft(path, "/")

	if s.policy == FirstRule {
		first := s.rules[0]
		return first.Matches(path) == first.Include
	}

	for _, rule := range s.rules {
		if rule.Matches(path) {
			return rule.Include
		}
	}
	return true
}

// Rules returns a copy of the compiled rules in evaluation order
func (s *Set) Rules() []Rule {
	if s == nil {
		return nil
	}
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Policy returns the evaluation policy
func (s *Set) Policy() Policy {
	if s == nil {
		return FirstMatch
	}
	return s.policy
}

// Len returns the number of rules
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// String renders the set back as a ";"-separated token list
func (s *Set) String() string {
	if s == nil {
		return ""
	}
	raw := make([]string, len(s.rules))
	for i, r := range s.rules {
		raw[i] = r.Raw
	}
	return strings.Join(raw, ";")
}
