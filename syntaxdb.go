package main

import (
	"bufio"
	"strings"
)

// SyntaxDB is the loaded syntax-description table: the keyword and
// builtin-name vocabulary the lexer and parser accept. The CIAM rewriter
// and a full user-facing grammar are external to this compiler per
// spec.md; this is the trimmed stand-in that lets the lexer recognise
// the fixed keyword set without hard-coding it twice.
type SyntaxDB struct {
	Keywords map[string]Tok
	Builtins map[string]bool
}

// DefaultSyntaxDB returns the builtin vocabulary wired into the grammar:
// the label-based statement keywords from token.go plus the single
// `print` builtin spec.md's end-to-end scenarios call.
func DefaultSyntaxDB() *SyntaxDB {
	db := &SyntaxDB{
		Keywords: make(map[string]Tok, len(keywords)),
		Builtins: map[string]bool{"print": true},
	}
	for k, v := range keywords {
		db.Keywords[k] = v
	}
	return db
}

// LoadSyntaxDB parses a simple line-oriented syntax-description file:
//
//	keyword <name>
//	builtin <name>
//
// A builtin line adds the name to the builtin table. A keyword line is
// accepted but has no effect: the keyword set is the fixed one in
// token.go. Blank lines and lines starting with '#' are ignored. Unknown line
// shapes are ignored rather than rejected, matching the "external,
// best-effort" nature of this table per spec.md.
func LoadSyntaxDB(text string) *SyntaxDB {
	db := DefaultSyntaxDB()
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		switch fields[0] {
		case "builtin":
			db.Builtins[fields[1]] = true
		}
	}
	return db
}

func (db *SyntaxDB) IsBuiltin(name string) bool {
	return db.Builtins[name]
}
