package domain

// DefaultSeparator sits between a grammar prefix and its user slot
const DefaultSeparator = " "

// UserInput describes whether a grammar takes a member reference
type UserInput struct {
	Accepts  bool
	Optional bool
}

// Grammar is the declarative definition of one command.
// Grammars are immutable after startup.
type Grammar struct {
	ID               string
	DisplayNames     []string
	PrettyName       string
	ShortDescription string
	LongDescription  string
	Syntax           string
	Examples         []string
	Sudo             bool
	Attachments      []string // attachment kinds the command reads
	UserInput        UserInput
	Prefix           string
	Suffix           string
	Separator        string
	Experimental     bool
}

// Category groups grammars for help rendering
type Category struct {
	ID          string
	DisplayName string
	Description string
	Grammars    []*Grammar
}

// MatchResult is one grammar that matched a command
type MatchResult struct {
	GrammarID string
	// Captures are all capture groups in pattern order. The user slot holds the
	// resolved canonical member key.
	Captures  []string
	UserIndex int // position of the user slot in Captures, -1 if none
	MemberKey string
	MemberID  string
}

// Arg returns capture i or "" when out of range
func (m *MatchResult) Arg(i int) string {
	if i < 0 || i >= len(m.Captures) {
		return ""
	}
	return m.Captures[i]
}

// Args returns the captures other than the user slot, in order
func (m *MatchResult) Args() []string {
	out := make([]string, 0, len(m.Captures))
	for i, c := range m.Captures {
		if i != m.UserIndex {
			out = append(out, c)
		}
	}
	return out
}
