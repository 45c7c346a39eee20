// Package parser implements the platform description grammar: a
// recursive-descent parser over internal/lexer's token stream producing an
// internal/ast.Description. Entries are column-1 declarations; attribute
// lines belonging to an entry are either braced (`{ ... }`) or bare
// indented lines following the header, mirroring the teacher repo's
// JsonParser.DecodeChain/DecodeRule split between a chain header and its
// node list (engine/parser.go) generalized from JSON decoding to a
// hand-written grammar.
package parser

import (
	"strconv"
	"strings"

	"github.com/bittoy/platformdesc/diag"
	"github.com/bittoy/platformdesc/internal/ast"
	"github.com/bittoy/platformdesc/internal/lexer"
)

type parser struct {
	lex      *lexer.Lexer
	fileName string
	buf      []lexer.Token
}

// Parse parses text (attributed to fileName for diagnostics) into a
// Description, or returns the *diag.Error produced by the first syntax
// failure. It is the standalone entry point for tests and any caller
// outside the include pipeline; internal/include calls ParseRaw directly so
// a nested file's syntax error propagates through its own single recover
// point instead of being caught and re-wrapped here.
func Parse(text string, fileName string) (desc *ast.Description, err error) {
	defer func() { diag.Recover(recover(), &err) }()
	return ParseRaw(text, fileName), nil
}

// ParseRaw parses text like Parse but does not recover diag.Report panics;
// callers that already run under their own diag.Recover (internal/include)
// should use this instead.
func ParseRaw(text string, fileName string) *ast.Description {
	p := &parser{lex: lexer.New(text), fileName: fileName}
	desc := p.parseDescription()
	desc.FileName = fileName
	desc.SourceLines = p.lex.Lines()
	return desc
}

func (p *parser) fill(n int) {
	for len(p.buf) <= n {
		tok, lexErr := p.lex.Next()
		if lexErr != nil {
			if le, ok := lexErr.(*lexer.Error); ok {
				diag.ReportAt(diag.SyntaxError, le.Pos, p.fileName, false, "%s", le.Message)
			}
			diag.ReportAt(diag.SyntaxError, ast.Position{}, p.fileName, false, "%s", lexErr.Error())
		}
		p.buf = append(p.buf, tok)
	}
}

func (p *parser) peek(n int) lexer.Token {
	p.fill(n)
	return p.buf[n]
}

func (p *parser) advance() lexer.Token {
	p.fill(0)
	t := p.buf[0]
	p.buf = p.buf[1:]
	return t
}

func kindName(k lexer.Kind) string {
	switch k {
	case lexer.TEOF:
		return "end of input"
	case lexer.TIdent:
		return "identifier"
	case lexer.TString:
		return "string"
	case lexer.TNumber:
		return "number"
	case lexer.TColon:
		return "':'"
	case lexer.TSemicolon:
		return "';'"
	case lexer.TComma:
		return "','"
	case lexer.TLBrace:
		return "'{'"
	case lexer.TRBrace:
		return "'}'"
	case lexer.TAt:
		return "'@'"
	case lexer.TArrow:
		return "'->'"
	case lexer.TLAngle:
		return "'<'"
	case lexer.TRAngle:
		return "'>'"
	case lexer.TDot:
		return "'.'"
	}
	return "token"
}

func (p *parser) expect(kind lexer.Kind) lexer.Token {
	t := p.peek(0)
	if t.Kind != kind {
		diag.ReportAt(diag.SyntaxError, t.Pos, p.fileName, false, "expected %s", kindName(kind))
	}
	return p.advance()
}

func (p *parser) expectKeyword(word string) lexer.Token {
	t := p.peek(0)
	if t.Kind != lexer.TIdent || t.Text != word {
		diag.ReportAt(diag.SyntaxError, t.Pos, p.fileName, false, "expected '%s'", word)
	}
	return p.advance()
}

func expectedOneOf(alts ...string) string {
	return "expected " + strings.Join(alts, " or ")
}

func isKeyword(t lexer.Token, word string) bool {
	return t.Kind == lexer.TIdent && t.Text == word
}

// isBoundary reports whether t can never be part of a value/attribute
// continuation: it either closes an enclosing brace, starts a new
// top-level declaration, or ends the input.
func isBoundary(t lexer.Token) bool {
	return t.Kind == lexer.TEOF || t.Kind == lexer.TRBrace || t.Kind == lexer.TSemicolon || t.Pos.Column == 1
}

func (p *parser) parseDescription() *ast.Description {
	desc := &ast.Description{}
	sawEntry := false
	for {
		t := p.peek(0)
		if t.Kind == lexer.TEOF {
			break
		}
		if t.Pos.Column != 1 {
			diag.ReportAt(diag.SyntaxError, t.Pos, p.fileName, false, "expected top-level declaration, found indented content")
		}
		if isKeyword(t, "using") {
			if sawEntry {
				diag.ReportAt(diag.SyntaxError, t.Pos, p.fileName, false, "using directives must precede all entries")
			}
			desc.Usings = append(desc.Usings, p.parseUsing())
			continue
		}
		if t.Kind != lexer.TIdent {
			diag.ReportAt(diag.SyntaxError, t.Pos, p.fileName, false, "%s", expectedOneOf("'using'", "variable name"))
		}
		desc.Entries = append(desc.Entries, p.parseEntry())
		sawEntry = true
	}
	return desc
}

func (p *parser) parseUsing() *ast.Using {
	usingTok := p.expectKeyword("using")
	pathTok := p.expect(lexer.TString)
	u := &ast.Using{Pos: usingTok.Pos, Path: pathTok.Text, PathPos: pathTok.Pos}
	if isKeyword(p.peek(0), "prefix") {
		p.advance()
		prefixTok := p.expect(lexer.TString)
		u.HasPrefix = true
		u.Prefix = prefixTok.Text
	}
	return u
}

func (p *parser) parseEntry() *ast.Entry {
	nameTok := p.expect(lexer.TIdent)
	colonTok := p.expect(lexer.TColon)
	entry := &ast.Entry{Pos: nameTok.Pos, Variable: nameTok.Text, VariablePos: nameTok.Pos}
	p.parseEntryBody(entry, colonTok.Pos.Line)
	return entry
}

func (p *parser) parseDottedIdent() (string, ast.Position) {
	first := p.expect(lexer.TIdent)
	parts := []string{first.Text}
	for p.peek(0).Kind == lexer.TDot {
		p.advance()
		parts = append(parts, p.expect(lexer.TIdent).Text)
	}
	return strings.Join(parts, "."), first.Pos
}

func (p *parser) parseEntryBody(entry *ast.Entry, headerLine int) {
	t := p.peek(0)
	if t.Kind == lexer.TEOF || t.Pos.Line != headerLine {
		p.parseAttributesNoBrace(entry)
		return
	}
	switch {
	case isKeyword(t, "local"):
		p.advance()
		entry.HasType = true
		entry.Type, entry.TypePos = p.parseDottedIdent()
		p.parseRegistrationsAliasThenAttrs(entry)
	case t.Kind == lexer.TAt:
		p.parseRegistrationsAliasThenAttrs(entry)
	case isKeyword(t, "as"):
		p.parseRegistrationsAliasThenAttrs(entry)
	case t.Kind == lexer.TLBrace:
		p.parseBracedBlock(entry)
	case t.Kind == lexer.TIdent:
		if p.peek(1).Kind == lexer.TColon {
			p.parseAttributesNoBrace(entry)
			return
		}
		entry.HasType = true
		entry.Type, entry.TypePos = p.parseDottedIdent()
		p.parseRegistrationsAliasThenAttrs(entry)
	default:
		diag.ReportAt(diag.SyntaxError, t.Pos, p.fileName, false,
			"%s", expectedOneOf("'local'", "type name", "'@'", "'as'", "'{'", "attribute name"))
	}
}

func (p *parser) parseRegistrationsAliasThenAttrs(entry *ast.Entry) {
	for p.peek(0).Kind == lexer.TAt {
		entry.Registrations = append(entry.Registrations, p.parseRegistrationInfo())
	}
	if isKeyword(p.peek(0), "as") {
		p.advance()
		aliasTok := p.expect(lexer.TString)
		entry.HasAlias = true
		entry.Alias = aliasTok.Text
		entry.AliasPos = aliasTok.Pos
	}
	if p.peek(0).Kind == lexer.TLBrace {
		p.parseBracedBlock(entry)
	} else {
		p.parseAttributesNoBrace(entry)
	}
}

func (p *parser) parseRegistrationInfo() *ast.RegistrationInfo {
	atTok := p.expect(lexer.TAt)
	regTok := p.expect(lexer.TIdent)
	info := &ast.RegistrationInfo{Pos: atTok.Pos}
	if regTok.Text == "none" {
		info.Cancel = true
	} else {
		info.Register = &ast.ReferenceValue{Pos: regTok.Pos, Name: regTok.Text}
		info.RegisterPos = regTok.Pos
	}
	if !isBoundary(p.peek(0)) && p.peek(0).Kind != lexer.TAt && !isKeyword(p.peek(0), "as") && p.peek(0).Kind != lexer.TLBrace {
		info.Point = p.parseValue()
	}
	return info
}

func (p *parser) parseBracedBlock(entry *ast.Entry) {
	p.expect(lexer.TLBrace)
	for p.peek(0).Kind != lexer.TRBrace {
		if p.peek(0).Kind == lexer.TEOF {
			diag.ReportAt(diag.SyntaxError, p.peek(0).Pos, p.fileName, false, "expected '}'")
		}
		p.parseOneAttribute(entry)
		if p.peek(0).Kind == lexer.TSemicolon {
			p.advance()
		}
	}
	p.expect(lexer.TRBrace)
}

func (p *parser) parseAttributesNoBrace(entry *ast.Entry) {
	for {
		t := p.peek(0)
		if t.Kind == lexer.TEOF || t.Pos.Column == 1 {
			break
		}
		p.parseOneAttribute(entry)
		if p.peek(0).Kind == lexer.TSemicolon {
			p.advance()
		}
	}
}

func (p *parser) parseOneAttribute(entry *ast.Entry) {
	t := p.peek(0)
	switch {
	case t.Kind == lexer.TArrow:
		entry.Attributes = append(entry.Attributes, p.parseIrqAttribute(nil))
	case isKeyword(t, "init") && p.peek(1).Kind == lexer.TColon:
		entry.Attributes = append(entry.Attributes, p.parseInitAttribute())
	case t.Kind == lexer.TIdent && p.peek(1).Kind == lexer.TColon:
		entry.Attributes = append(entry.Attributes, p.parseNameValueAttribute())
	case t.Kind == lexer.TIdent || t.Kind == lexer.TNumber:
		entry.Attributes = append(entry.Attributes, p.parseIrqSourcesThenAttribute())
	default:
		diag.ReportAt(diag.SyntaxError, t.Pos, p.fileName, false, "%s", expectedOneOf("attribute name", "'init'", "irq source", "'->'"))
	}
}

func (p *parser) parseNameValueAttribute() *ast.CtorOrPropertyAttribute {
	nameTok := p.expect(lexer.TIdent)
	p.expect(lexer.TColon)
	var value ast.Value
	if isBoundary(p.peek(0)) {
		value = &ast.EmptyValue{Pos: nameTok.Pos}
	} else {
		value = p.parseValue()
	}
	return &ast.CtorOrPropertyAttribute{Pos: nameTok.Pos, Name: nameTok.Text, NamePos: nameTok.Pos, Value: value}
}

func (p *parser) parseInitAttribute() *ast.InitAttribute {
	initTok := p.expectKeyword("init")
	p.expect(lexer.TColon)
	p.expect(lexer.TLBrace)
	init := &ast.InitAttribute{Pos: initTok.Pos}
	for p.peek(0).Kind != lexer.TRBrace {
		lineTok := p.expect(lexer.TString)
		init.Lines = append(init.Lines, lineTok.Text)
		init.LinePos = append(init.LinePos, lineTok.Pos)
		if p.peek(0).Kind == lexer.TSemicolon {
			p.advance()
		}
	}
	p.expect(lexer.TRBrace)
	return init
}

func (p *parser) parseIrqSourcesThenAttribute() *ast.IrqAttribute {
	var sources []ast.IrqSourceEnd
	for {
		t := p.peek(0)
		var se ast.IrqSourceEnd
		switch t.Kind {
		case lexer.TNumber:
			se = ast.IrqSourceEnd{Pos: t.Pos, Numbered: true, Index: parseIntLiteral(t.Text)}
			p.advance()
		case lexer.TIdent:
			se = ast.IrqSourceEnd{Pos: t.Pos, PropertyName: t.Text}
			p.advance()
		default:
			diag.ReportAt(diag.SyntaxError, t.Pos, p.fileName, false, "%s", expectedOneOf("irq source index", "irq source property name"))
		}
		sources = append(sources, se)
		if p.peek(0).Kind == lexer.TComma {
			p.advance()
			continue
		}
		break
	}
	return p.parseIrqAttribute(sources)
}

func (p *parser) parseIrqAttribute(sources []ast.IrqSourceEnd) *ast.IrqAttribute {
	pos := p.peek(0).Pos
	if len(sources) > 0 {
		pos = sources[0].Pos
	}
	p.expect(lexer.TArrow)
	irq := &ast.IrqAttribute{Pos: pos, Sources: sources}
	for {
		irq.Destinations = append(irq.Destinations, p.parseIrqDestination())
		if p.peek(0).Kind == lexer.TComma {
			p.advance()
			continue
		}
		break
	}
	return irq
}

func (p *parser) parseIrqDestination() ast.IrqDestination {
	t := p.peek(0)
	if isKeyword(t, "none") {
		p.advance()
		return ast.IrqDestination{Pos: t.Pos, Cancel: true}
	}
	nameTok := p.expect(lexer.TIdent)
	dest := ast.IrqDestination{Pos: nameTok.Pos, Peripheral: &ast.ReferenceValue{Pos: nameTok.Pos, Name: nameTok.Text}}
	if p.peek(0).Kind == lexer.TColon {
		p.advance()
		idxTok := p.expect(lexer.TNumber)
		dest.HasLocalIndex = true
		dest.LocalIndex = parseIntLiteral(idxTok.Text)
	}
	p.expect(lexer.TAt)
	first := p.expect(lexer.TNumber)
	dest.Ends = append(dest.Ends, ast.IrqDestEnd{Pos: first.Pos, Index: parseIntLiteral(first.Text)})
	for p.peek(0).Kind == lexer.TComma && p.peek(1).Kind == lexer.TNumber {
		p.advance()
		numTok := p.advance()
		dest.Ends = append(dest.Ends, ast.IrqDestEnd{Pos: numTok.Pos, Index: parseIntLiteral(numTok.Text)})
	}
	return dest
}

func (p *parser) parseValue() ast.Value {
	t := p.peek(0)
	switch t.Kind {
	case lexer.TString:
		p.advance()
		return &ast.StringValue{Pos: t.Pos, Value: t.Text}
	case lexer.TNumber:
		p.advance()
		return &ast.NumericalValue{Pos: t.Pos, Text: t.Text}
	case lexer.TLAngle:
		return p.parseRange()
	case lexer.TIdent:
		switch t.Text {
		case "true":
			p.advance()
			return &ast.BoolValue{Pos: t.Pos, Value: true}
		case "false":
			p.advance()
			return &ast.BoolValue{Pos: t.Pos, Value: false}
		case "none":
			p.advance()
			return &ast.NoneValue{Pos: t.Pos}
		default:
			return p.parseIdentValue()
		}
	default:
		diag.ReportAt(diag.SyntaxError, t.Pos, p.fileName, false, "%s", expectedOneOf("string", "number", "'<'", "identifier", "'true'", "'false'", "'none'"))
	}
	panic("unreachable")
}

func (p *parser) parseRange() ast.Value {
	open := p.expect(lexer.TLAngle)
	fromTok := p.expect(lexer.TNumber)
	p.expect(lexer.TComma)
	toTok := p.expect(lexer.TNumber)
	p.expect(lexer.TRAngle)
	return &ast.RangeValue{
		Pos:  open.Pos,
		From: ast.NumericalValue{Pos: fromTok.Pos, Text: fromTok.Text},
		To:   ast.NumericalValue{Pos: toTok.Pos, Text: toTok.Text},
	}
}

func (p *parser) parseIdentValue() ast.Value {
	first := p.advance()
	path := []string{first.Text}
	for p.peek(0).Kind == lexer.TDot {
		p.advance()
		path = append(path, p.expect(lexer.TIdent).Text)
	}
	if p.peek(0).Kind == lexer.TLBrace {
		typeName := strings.Join(path, ".")
		p.advance()
		var attrs []ast.Attribute
		for p.peek(0).Kind != lexer.TRBrace {
			if p.peek(0).Kind == lexer.TEOF {
				diag.ReportAt(diag.SyntaxError, p.peek(0).Pos, p.fileName, false, "expected '}'")
			}
			attrs = append(attrs, p.parseStandaloneAttribute())
			if p.peek(0).Kind == lexer.TSemicolon {
				p.advance()
			}
		}
		p.expect(lexer.TRBrace)
		return &ast.ObjectValue{Pos: first.Pos, TypeName: typeName, TypeNamePos: first.Pos, Attributes: attrs}
	}
	if len(path) > 1 {
		member := path[len(path)-1]
		nsAndType := path[:len(path)-1]
		return &ast.EnumValue{Pos: first.Pos, Path: reverseStrings(nsAndType), Member: member}
	}
	return &ast.ReferenceValue{Pos: first.Pos, Name: first.Text}
}

// parseStandaloneAttribute parses one attribute inside an ObjectValue's
// brace block, reusing the same dispatch as entry-level attributes without
// requiring an *ast.Entry to append to.
func (p *parser) parseStandaloneAttribute() ast.Attribute {
	var dummy ast.Entry
	p.parseOneAttribute(&dummy)
	return dummy.Attributes[0]
}

func reverseStrings(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

func parseIntLiteral(text string) int {
	neg := false
	if strings.HasPrefix(text, "-") {
		neg = true
		text = text[1:]
	}
	var v int64
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		v, _ = strconv.ParseInt(text[2:], 16, 64)
	} else {
		v, _ = strconv.ParseInt(text, 10, 64)
	}
	if neg {
		v = -v
	}
	return int(v)
}
