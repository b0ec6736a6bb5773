package script

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// ScriptLexer tokenizes terminal scripts:
//
//	# terminal 1 has a screen to send
//	on poll 2 1 => text "HELLO" ebcdic
//	on ack1     => eot
//	on poll     => eot * 3
var ScriptLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[\s]+`},
	{Name: "KwOn", Pattern: `(?i)\bon\b`},
	{Name: "Arrow", Pattern: `=>`},
	{Name: "Star", Pattern: `\*`},
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Hex", Pattern: `0[xX][0-9a-fA-F]+`},
	{Name: "Integer", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z][a-zA-Z0-9_]*`},
})

// Script is a parsed terminal script.
type Script struct {
	Steps []*Step `@@*`
}

// Step answers one matching frame from the line.
type Step struct {
	Pos   lexer.Position
	Match *Match `KwOn @@ Arrow`
	Reply *Reply `@@`
}

// Match selects the frame a step answers. Addresses are optional and only
// meaningful for poll and select.
type Match struct {
	Kind string  `@Ident`
	CU   *string `( @( Hex | Integer )`
	Dev  *string `  @( Hex | Integer ) )?`
}

// Reply is what the terminal sends back.
type Reply struct {
	Kind  string   `@Ident`
	Data  *string  `@String?`
	Flags []string `@Ident*`
	Count *int     `( Star @Integer )?`
}

var scriptParser = participle.MustBuild[Script](
	participle.Lexer(ScriptLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)

// Parse parses a script from r. name is used in error positions.
func Parse(name string, r io.Reader) (*Script, error) {
	s, err := scriptParser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return s, nil
}

// ParseString parses a script held in memory.
func ParseString(src string) (*Script, error) {
	s, err := scriptParser.ParseString("", src)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return s, nil
}

// ParseFile parses the script at path.
func ParseFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()
	return Parse(path, f)
}
