package caps

import (
	"fmt"
	"slices"
	"strings"
)

// ParseError reports a malformed capability string, naming the
// unconsumed suffix the parser stopped at.
type ParseError struct {
	Input string
	Rest  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("capability parse failed, stopped at %q of %q", e.Rest, e.Input)
}

// ParsePolicy parses a capability string into a Policy.
//
// The grammar is a comma- or semicolon-separated list of grants,
// optionally followed by the idmap marker:
//
//	allow <capspec> [path=<path>] [uid=<n> [gids=<n>,<n>,...]]
//
// with whitespace permitted between any two tokens. The exact string
// "allow" is a legacy shortcut for a single rwps grant matching
// everything. The whole input must be consumed; trailing garbage is an
// error and no grants are kept.
func ParsePolicy(input string) (*Policy, error) {
	// The idmap marker is a substring test over the raw input, not
	// a grammar production. Previously issued caps depend on this.
	pol := &Policy{idmapRequired: strings.Contains(input, "idmap")}

	if input == "allow" {
		pol.Grants = []Grant{{Spec: SpecRWPS, Match: NewMatch("")}}
		return pol, nil
	}

	p := &parser{input: input}
	grants, ok := p.parseGrants()
	if ok {
		for p.keyword("idmap") {
		}
		p.skipSpaces()
		ok = p.pos == len(p.input)
	}
	if !ok {
		return nil, &ParseError{Input: input, Rest: p.input[p.pos:]}
	}

	for i := range grants {
		slices.Sort(grants[i].Match.GIDs)
	}
	pol.Grants = grants
	return pol, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) parseGrants() ([]Grant, bool) {
	var grants []Grant
	for {
		g, ok := p.parseGrant()
		if !ok {
			return nil, false
		}
		grants = append(grants, g)

		save := p.pos
		p.skipSpaces()
		if c, ok := p.peek(); ok && (c == ',' || c == ';') {
			p.pos++
			continue
		}
		p.pos = save
		return grants, true
	}
}

func (p *parser) parseGrant() (Grant, bool) {
	if !p.keyword("allow") {
		return Grant{}, false
	}
	spec, ok := p.parseCapSpec()
	if !ok {
		return Grant{}, false
	}
	m, ok := p.parseMatch()
	if !ok {
		return Grant{}, false
	}
	return Grant{Spec: spec, Match: m}, true
}

var capSpecs = []struct {
	word string
	spec CapSpec
}{
	{"*", SpecAll},
	{"all", SpecAll},
	{"rwps", SpecRWPS},
	{"rwp", SpecRWP},
	{"rws", SpecRWS},
	{"rw", SpecRW},
	{"r", SpecRead},
}

func (p *parser) parseCapSpec() (CapSpec, bool) {
	word := p.word()
	for _, cs := range capSpecs {
		if word == cs.word {
			return cs.spec, true
		}
	}
	return 0, false
}

// parseMatch consumes an optional path constraint followed by an
// optional uid constraint with an optional gid list. A gid list
// without a uid is not part of the language.
func (p *parser) parseMatch() (Match, bool) {
	m := NewMatch("")

	if p.keyword("path") {
		if !p.expect('=') {
			return m, false
		}
		path, ok := p.parsePath()
		if !ok {
			return m, false
		}
		m = NewMatch(path)
	}

	if p.keyword("uid") {
		if !p.expect('=') {
			return m, false
		}
		uid, ok := p.parseUint()
		if !ok {
			return m, false
		}
		m.UID = uid

		if p.keyword("gids") {
			if !p.expect('=') {
				return m, false
			}
			gids, ok := p.parseUintList()
			if !ok {
				return m, false
			}
			m.GIDs = gids
		}
	}

	return m, true
}

func (p *parser) parsePath() (string, bool) {
	p.skipSpaces()
	if c, ok := p.peek(); ok && (c == '"' || c == '\'') {
		quote := c
		p.pos++
		end := strings.IndexByte(p.input[p.pos:], quote)
		if end < 0 {
			return "", false
		}
		path := p.input[p.pos : p.pos+end]
		p.pos += end + 1
		return path, true
	}

	start := p.pos
	for p.pos < len(p.input) && isPathChar(p.input[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", false
	}
	return p.input[start:p.pos], true
}

func isPathChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '.', c == '/', c == '-':
		return true
	}
	return false
}

func (p *parser) parseUint() (int64, bool) {
	p.skipSpaces()
	start := p.pos
	var n int64
	for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		n = n*10 + int64(p.input[p.pos]-'0')
		p.pos++
	}
	return n, p.pos > start
}

// parseUintList consumes uints separated by commas. A comma not
// followed by a digit is left unconsumed: it separates grants, not
// list elements.
func (p *parser) parseUintList() ([]int64, bool) {
	n, ok := p.parseUint()
	if !ok {
		return nil, false
	}
	list := []int64{n}
	for {
		save := p.pos
		p.skipSpaces()
		if c, ok := p.peek(); !ok || c != ',' {
			p.pos = save
			return list, true
		}
		p.pos++
		n, ok := p.parseUint()
		if !ok {
			p.pos = save
			return list, true
		}
		list = append(list, n)
	}
}

// keyword consumes word as a complete token, restoring position if the
// next token is anything else.
func (p *parser) keyword(word string) bool {
	save := p.pos
	if p.word() == word {
		return true
	}
	p.pos = save
	return false
}

// word consumes the next maximal run of letters and asterisks.
func (p *parser) word() string {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.input) && isWordChar(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '*'
}

func (p *parser) expect(c byte) bool {
	p.skipSpaces()
	if got, ok := p.peek(); ok && got == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) peek() (byte, bool) {
	if p.pos < len(p.input) {
		return p.input[p.pos], true
	}
	return 0, false
}

func (p *parser) skipSpaces() {
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}
