package conf

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/threadbot/threadbot/internal/biz/domain"
)

//go:embed grammars.yaml
var defaultGrammars []byte

// DefaultGrammars returns the embedded registry source
func DefaultGrammars() []byte {
	return defaultGrammars
}

type registryFile struct {
	Categories []categoryFile `yaml:"categories"`
}

type categoryFile struct {
	ID          string        `yaml:"id"`
	DisplayName string        `yaml:"display_name"`
	Description string        `yaml:"description"`
	Grammars    []grammarFile `yaml:"grammars"`
}

type grammarFile struct {
	ID               string    `yaml:"id"`
	DisplayNames     []string  `yaml:"display_names"`
	PrettyName       string    `yaml:"pretty_name"`
	ShortDescription string    `yaml:"short_description"`
	LongDescription  string    `yaml:"long_description"`
	Syntax           string    `yaml:"syntax"`
	Examples         []string  `yaml:"examples"`
	Sudo             bool      `yaml:"requires_privilege"`
	Attachments      []string  `yaml:"attachments"`
	User             string    `yaml:"user"` // "", required or optional
	Regex            regexSpec `yaml:"regex"`
	Separator        *string   `yaml:"separator"`
	Experimental     bool      `yaml:"experimental"`
}

// regexSpec accepts a single pattern or a [prefix, suffix] pair
type regexSpec struct {
	Prefix string
	Suffix string
}

func (r *regexSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&r.Prefix)
	case yaml.SequenceNode:
		var parts []string
		if err := node.Decode(&parts); err != nil {
			return err
		}
		if len(parts) == 0 || len(parts) > 2 {
			return fmt.Errorf("line %d: regex pair must have one or two parts, got %d", node.Line, len(parts))
		}
		r.Prefix = parts[0]
		if len(parts) == 2 {
			r.Suffix = parts[1]
		}
		return nil
	default:
		return fmt.Errorf("line %d: regex must be a string or a [prefix, suffix] pair", node.Line)
	}
}

// LoadGrammars loads the registry from path, or the embedded default when
// path is empty. separator is used for grammars that do not set their own.
func LoadGrammars(path, separator string) ([]*domain.Category, error) {
	data := defaultGrammars
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read grammars: %w", err)
		}
	}
	return ParseGrammars(data, separator)
}

// ParseGrammars decodes a registry document
func ParseGrammars(data []byte, separator string) ([]*domain.Category, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse grammars: %w", err)
	}
	if separator == "" {
		separator = domain.DefaultSeparator
	}

	categories := make([]*domain.Category, 0, len(file.Categories))
	for _, c := range file.Categories {
		cat := &domain.Category{
			ID:          c.ID,
			DisplayName: c.DisplayName,
			Description: c.Description,
		}
		for _, g := range c.Grammars {
			grammar := &domain.Grammar{
				ID:               g.ID,
				DisplayNames:     g.DisplayNames,
				PrettyName:       g.PrettyName,
				ShortDescription: g.ShortDescription,
				LongDescription:  g.LongDescription,
				Syntax:           g.Syntax,
				Examples:         g.Examples,
				Sudo:             g.Sudo,
				Attachments:      g.Attachments,
				Prefix:           g.Regex.Prefix,
				Suffix:           g.Regex.Suffix,
				Separator:        separator,
				Experimental:     g.Experimental,
			}
			if g.Separator != nil {
				grammar.Separator = *g.Separator
			}
			switch g.User {
			case "":
			case "required":
				grammar.UserInput = domain.UserInput{Accepts: true}
			case "optional":
				grammar.UserInput = domain.UserInput{Accepts: true, Optional: true}
			default:
				return nil, fmt.Errorf("grammar %s: user must be required or optional, got %q", g.ID, g.User)
			}
			if grammar.PrettyName == "" {
				grammar.PrettyName = grammar.ID
			}
			cat.Grammars = append(cat.Grammars, grammar)
		}
		categories = append(categories, cat)
	}
	return categories, nil
}
