package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/threadbot/threadbot/internal/biz/domain"
)

const userGroup = "user"

// CompiledGrammar is a grammar whose pattern parts were validated at startup.
// Grammars without a user slot carry their final patterns; grammars with one
// are spliced with the conversation's name alternation by the Matcher.
type CompiledGrammar struct {
	*domain.Grammar
	Index int // declaration order in the registry

	anchored   *regexp.Regexp
	contextual *regexp.Regexp
}

// Registry is the ordered, immutable table of command grammars
type Registry struct {
	categories []*domain.Category
	grammars   []*CompiledGrammar
	byID       map[string]*CompiledGrammar
}

// NewRegistry validates and compiles every grammar in declaration order
func NewRegistry(categories []*domain.Category) (*Registry, error) {
	r := &Registry{
		categories: categories,
		byID:       make(map[string]*CompiledGrammar),
	}

	for _, cat := range categories {
		for _, g := range cat.Grammars {
			if g.ID == "" {
				return nil, fmt.Errorf("category %s: grammar without id", cat.ID)
			}
			if _, dup := r.byID[g.ID]; dup {
				return nil, fmt.Errorf("duplicate grammar id %q", g.ID)
			}
			cg, err := compileGrammar(g, len(r.grammars))
			if err != nil {
				return nil, err
			}
			r.grammars = append(r.grammars, cg)
			r.byID[g.ID] = cg
		}
	}
	return r, nil
}

func compileGrammar(g *domain.Grammar, index int) (*CompiledGrammar, error) {
	if g.Separator == "" {
		g.Separator = domain.DefaultSeparator
	}
	for part, src := range map[string]string{"prefix": g.Prefix, "suffix": g.Suffix} {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("grammar %s: invalid %s: %w", g.ID, part, err)
		}
		if re.SubexpIndex(userGroup) >= 0 {
			return nil, fmt.Errorf("grammar %s: %s must not define a %q group", g.ID, part, userGroup)
		}
	}

	cg := &CompiledGrammar{Grammar: g, Index: index}
	if g.UserInput.Accepts {
		// Validate the splice with a placeholder name set
		if _, err := regexp.Compile(cg.source("me", false)); err != nil {
			return nil, fmt.Errorf("grammar %s: invalid pattern: %w", g.ID, err)
		}
		return cg, nil
	}

	var err error
	if cg.anchored, err = regexp.Compile(cg.source("", false)); err != nil {
		return nil, fmt.Errorf("grammar %s: invalid pattern: %w", g.ID, err)
	}
	if cg.contextual, err = regexp.Compile(cg.source("", true)); err != nil {
		return nil, fmt.Errorf("grammar %s: invalid pattern: %w", g.ID, err)
	}
	return cg, nil
}

// source assembles the full pattern: prefix, the user slot after the
// separator, then the suffix
func (g *CompiledGrammar) source(names string, contextless bool) string {
	var b strings.Builder
	b.WriteString("(?i)")
	if !contextless {
		b.WriteString("^")
	}
	if g.Prefix != "" {
		b.WriteString("(?:" + g.Prefix + ")")
	}
	if g.UserInput.Accepts {
		sep := ""
		if g.Prefix != "" {
			sep = regexp.QuoteMeta(g.Separator)
		}
		b.WriteString("(?:" + sep + "(?P<" + userGroup + ">" + names + "))")
		if g.UserInput.Optional {
			b.WriteString("?")
		}
	}
	if g.Suffix != "" {
		b.WriteString("(?:" + g.Suffix + ")")
	}
	return b.String()
}

// Grammars returns compiled grammars in declaration order
func (r *Registry) Grammars() []*CompiledGrammar {
	return r.grammars
}

// Categories returns the categories for help rendering
func (r *Registry) Categories() []*domain.Category {
	return r.categories
}

// Get finds a grammar by id
func (r *Registry) Get(id string) (*CompiledGrammar, bool) {
	g, ok := r.byID[id]
	return g, ok
}

// Lookup finds a grammar by id or display name
func (r *Registry) Lookup(name string) (*CompiledGrammar, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if g, ok := r.byID[name]; ok {
		return g, true
	}
	for _, g := range r.grammars {
		for _, dn := range g.DisplayNames {
			if strings.ToLower(dn) == name {
				return g, true
			}
		}
	}
	return nil, false
}

// nameAlternation builds the user-slot alternation for a name set.
// Longer names come first so "alice" wins over "al"; names ending in an
// ASCII word character get a word boundary so "al" does not match "alfred".
func nameAlternation(names []string) string {
	sorted := append([]string{"me"}, names...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})

	parts := make([]string, 0, len(sorted))
	seen := make(map[string]bool, len(sorted))
	for _, n := range sorted {
		n = strings.ToLower(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		p := regexp.QuoteMeta(n)
		if last, _ := utf8.DecodeLastRuneInString(n); isASCIIWord(last) {
			p += `\b`
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "|")
}

func isASCIIWord(r rune) bool {
	return r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
