package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jgiron42/cc1/pkg/ast"
	"github.com/jgiron42/cc1/pkg/ctypes"
)

// Parser consumes the flat token slice produced by the Lexer and builds an AST.
//
// Grammar (C89 without the preprocessor):
//
//	translation-unit = (function-definition | declaration)* EOF
//	declaration      = decl-specs (init-declarator ("," init-declarator)*)? ";"
//	decl-specs       = (storage-class | type-specifier | type-qualifier)*
//	declarator       = ("*" type-qualifier*)* direct-declarator
//	direct-declarator = (IDENTIFIER | "(" declarator ")") ("[" const-expr? "]" | "(" params ")")*
//	statement        = compound | if | switch | while | do | for | goto | continue
//	                 | break | return | labeled | case | default | expr? ";"
//	expression       = assignment ("," assignment)*
//	assignment       = conditional (assign-op assignment)?
//	conditional      = logical-or ("?" expression ":" conditional)?
//	binary levels    = || && | ^ & (== !=) (< > <= >=) (<< >>) (+ -) (* / %)
//	cast             = "(" type-name ")" cast | unary
//	unary            = ("++" | "--") unary | unary-op cast | "sizeof" unary
//	                 | "sizeof" "(" type-name ")" | postfix
//	postfix          = primary ("[" expression "]" | "(" args ")" | "." IDENT | "->" IDENT | "++" | "--")*
//	primary          = IDENTIFIER | INTEGER | FLOATING | CHARACTER | STRING+ | "(" expression ")"
//
// a[i] is produced as *(a + i).
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
	// scopes records, per open block, whether a name declared there is a
	// typedef name.
	scopes []map[string]bool
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{
		tokens:      tokens,
		sourceLines: strings.Split(rawSource, "\n"),
		scopes:      []map[string]bool{{}},
	}
}

// Parse lexes and parses one translation unit.
func Parse(src string) (*ast.TranslationUnit, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	return NewParser(tokens, src).ParseTranslationUnit()
}

// fmtError wraps an error message with the source line where the token appears.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	lineIdx := tok.Line - 1 // Lines are 1-based

	snippet := "<source unavailable>"
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		snippet = strings.TrimSpace(p.sourceLines[lineIdx])
	}

	return fmt.Errorf("line %d:%d: %s\n  |> %s", tok.Line, tok.Col, msg, snippet)
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token { return p.peekAt(0) }

// peekNext returns the token immediately after the current one.
func (p *Parser) peekNext() Token { return p.peekAt(1) }

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+offset]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// accept consumes the current token if it matches tt.
func (p *Parser) accept(tt TokenType) bool {
	if p.peek().Type != tt {
		return false
	}
	p.advance()
	return true
}

// expect consumes the current token if it matches tt, otherwise returns an error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

func posOf(tok Token) ast.Pos { return ast.Pos{Line: tok.Line, Col: tok.Col} }

//  Typedef tracking

func (p *Parser) pushScope() { p.scopes = append(p.scopes, map[string]bool{}) }
func (p *Parser) popScope()  { p.scopes = p.scopes[:len(p.scopes)-1] }

func (p *Parser) declare(name string, isTypedef bool) {
	if name != "" {
		p.scopes[len(p.scopes)-1][name] = isTypedef
	}
}

func (p *Parser) isTypedefName(name string) bool {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if isType, ok := p.scopes[i][name]; ok {
			return isType
		}
	}
	return false
}

var specKinds = map[TokenType]ast.SpecKind{
	VOID:     ast.SpecVoid,
	CHAR:     ast.SpecChar,
	SHORT:    ast.SpecShort,
	INT:      ast.SpecInt,
	LONG:     ast.SpecLong,
	FLOAT:    ast.SpecFloat,
	DOUBLE:   ast.SpecDouble,
	SIGNED:   ast.SpecSigned,
	UNSIGNED: ast.SpecUnsigned,
}

var storageClasses = map[TokenType]ast.StorageClass{
	TYPEDEF:  ast.StorageTypedef,
	EXTERN:   ast.StorageExtern,
	STATIC:   ast.StorageStatic,
	AUTO:     ast.StorageAuto,
	REGISTER: ast.StorageRegister,
}

// startsTypeName reports whether tok can begin a type name.
func (p *Parser) startsTypeName(tok Token) bool {
	if _, ok := specKinds[tok.Type]; ok {
		return true
	}
	switch tok.Type {
	case CONST, VOLATILE, STRUCT, UNION, ENUM:
		return true
	case IDENTIFIER:
		return p.isTypedefName(tok.Lexeme)
	}
	return false
}

// startsDeclaration reports whether the current token begins a declaration.
func (p *Parser) startsDeclaration() bool {
	tok := p.peek()
	if _, ok := storageClasses[tok.Type]; ok {
		return true
	}
	if tok.Type == IDENTIFIER && p.peekNext().Type == COLON {
		return false
	}
	return p.startsTypeName(tok)
}

//  Declarations

// ParseTranslationUnit parses the whole token stream.
func (p *Parser) ParseTranslationUnit() (*ast.TranslationUnit, error) {
	tu := &ast.TranslationUnit{}
	for p.peek().Type != EOF {
		ext, err := p.parseExternal()
		if err != nil {
			return nil, err
		}
		tu.Decls = append(tu.Decls, ext)
	}
	return tu, nil
}

func (p *Parser) parseExternal() (ast.External, error) {
	start := p.peek()
	specs, err := p.parseDeclSpecs()
	if err != nil {
		return nil, err
	}
	if p.accept(SEMICOLON) {
		return &ast.Declaration{Specs: specs, Pos: posOf(start)}, nil
	}
	d, err := p.parseDeclarator(declConcrete)
	if err != nil {
		return nil, err
	}
	if fn := nameLayer(d); fn != nil && fn.Kind == ast.DirectFunction {
		if p.peek().Type == LBRACE || (len(fn.Idents) > 0 && p.startsDeclaration()) {
			return p.parseFunctionDef(start, specs, d, fn)
		}
	}
	return p.parseInitDeclarators(start, specs, d)
}

// nameLayer returns the array or function layer applied directly to the
// declared name, or nil when the name is declared through a pointer.
func nameLayer(d *ast.Declarator) *ast.Direct {
	var last *ast.Direct
	for d != nil {
		if len(d.Pointers) > 0 {
			last = nil
		}
		dd := d.Direct
		d = nil
		for dd != nil {
			switch dd.Kind {
			case ast.DirectArray, ast.DirectFunction:
				last = dd
				dd = dd.Inner
			case ast.DirectNested:
				d = dd.Nested
				dd = nil
			default:
				dd = nil
			}
		}
	}
	return last
}

// declaratorName returns the identifier declared by d, if any.
func declaratorName(d *ast.Declarator) string {
	for d != nil {
		dd := d.Direct
		d = nil
		for dd != nil {
			switch dd.Kind {
			case ast.DirectIdent:
				return dd.Name
			case ast.DirectNested:
				d = dd.Nested
				dd = nil
			case ast.DirectEmpty:
				dd = nil
			default:
				dd = dd.Inner
			}
		}
	}
	return ""
}

func (p *Parser) parseFunctionDef(start Token, specs *ast.DeclSpecs, d *ast.Declarator, fn *ast.Direct) (*ast.FunctionDef, error) {
	p.declare(declaratorName(d), false)
	def := &ast.FunctionDef{Specs: specs, Decl: d, Pos: posOf(start)}
	for p.peek().Type != LBRACE {
		decl, err := p.parseDeclaration()
		if err != nil {
			return nil, err
		}
		def.KRDecls = append(def.KRDecls, decl)
	}

	p.pushScope()
	defer p.popScope()
	for _, name := range fn.Idents {
		p.declare(name, false)
	}
	if fn.Params != nil {
		for _, pd := range fn.Params.Params {
			p.declare(declaratorName(pd.Decl), false)
		}
	}
	body, err := p.parseCompound(false)
	if err != nil {
		return nil, err
	}
	def.Body = body
	return def, nil
}

// parseDeclaration parses a block-scope declaration.
func (p *Parser) parseDeclaration() (*ast.Declaration, error) {
	start := p.peek()
	specs, err := p.parseDeclSpecs()
	if err != nil {
		return nil, err
	}
	if p.accept(SEMICOLON) {
		return &ast.Declaration{Specs: specs, Pos: posOf(start)}, nil
	}
	d, err := p.parseDeclarator(declConcrete)
	if err != nil {
		return nil, err
	}
	return p.parseInitDeclarators(start, specs, d)
}

func (p *Parser) parseInitDeclarators(start Token, specs *ast.DeclSpecs, d *ast.Declarator) (*ast.Declaration, error) {
	decl := &ast.Declaration{Specs: specs, Pos: posOf(start)}
	isTypedef := false
	for _, s := range specs.Storage {
		isTypedef = isTypedef || s == ast.StorageTypedef
	}
	for {
		p.declare(declaratorName(d), isTypedef)
		id := &ast.InitDeclarator{Decl: d}
		if p.accept(ASSIGN) {
			init, err := p.parseInitializer()
			if err != nil {
				return nil, err
			}
			id.Init = init
		}
		decl.Inits = append(decl.Inits, id)
		if !p.accept(COMMA) {
			break
		}
		var err error
		if d, err = p.parseDeclarator(declConcrete); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) parseDeclSpecs() (*ast.DeclSpecs, error) {
	ds := &ast.DeclSpecs{Pos: posOf(p.peek())}
	sawType := false
	for {
		tok := p.peek()
		if sc, ok := storageClasses[tok.Type]; ok {
			p.advance()
			ds.Storage = append(ds.Storage, sc)
			continue
		}
		if kind, ok := specKinds[tok.Type]; ok {
			p.advance()
			ds.Specs = append(ds.Specs, &ast.TypeSpec{Kind: kind, Pos: posOf(tok)})
			sawType = true
			continue
		}
		switch tok.Type {
		case CONST:
			p.advance()
			ds.Qual |= ctypes.Const
		case VOLATILE:
			p.advance()
			ds.Qual |= ctypes.Volatile
		case STRUCT, UNION:
			s, err := p.parseStructSpec()
			if err != nil {
				return nil, err
			}
			ds.Specs = append(ds.Specs, s)
			sawType = true
		case ENUM:
			s, err := p.parseEnumSpec()
			if err != nil {
				return nil, err
			}
			ds.Specs = append(ds.Specs, s)
			sawType = true
		case IDENTIFIER:
			if sawType || !p.isTypedefName(tok.Lexeme) {
				return ds, nil
			}
			p.advance()
			ds.Specs = append(ds.Specs, &ast.TypeSpec{Kind: ast.SpecTypedefName, Name: tok.Lexeme, Pos: posOf(tok)})
			sawType = true
		default:
			return ds, nil
		}
	}
}

func (p *Parser) parseStructSpec() (*ast.TypeSpec, error) {
	kw := p.advance()
	s := &ast.TypeSpec{Kind: ast.SpecStruct, Pos: posOf(kw)}
	if kw.Type == UNION {
		s.Kind = ast.SpecUnion
	}
	if p.peek().Type == IDENTIFIER {
		s.Name = p.advance().Lexeme
	}
	if !p.accept(LBRACE) {
		if s.Name == "" {
			return nil, p.fmtError(p.peek(), "expected identifier or '{' after %s", kw.Type)
		}
		return s, nil
	}
	s.Defined = true
	for !p.accept(RBRACE) {
		start := p.peek()
		specs, err := p.parseDeclSpecs()
		if err != nil {
			return nil, err
		}
		if len(specs.Storage) > 0 {
			return nil, p.fmtError(start, "storage class in member declaration")
		}
		field := &ast.Declaration{Specs: specs, Pos: posOf(start)}
		for {
			d, err := p.parseDeclarator(declConcrete)
			if err != nil {
				return nil, err
			}
			if p.peek().Type == COLON {
				return nil, p.fmtError(p.peek(), "bit-fields are not supported")
			}
			field.Inits = append(field.Inits, &ast.InitDeclarator{Decl: d})
			if !p.accept(COMMA) {
				break
			}
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, field)
	}
	return s, nil
}

func (p *Parser) parseEnumSpec() (*ast.TypeSpec, error) {
	kw := p.advance()
	s := &ast.TypeSpec{Kind: ast.SpecEnum, Pos: posOf(kw)}
	if p.peek().Type == IDENTIFIER {
		s.Name = p.advance().Lexeme
	}
	if !p.accept(LBRACE) {
		if s.Name == "" {
			return nil, p.fmtError(p.peek(), "expected identifier or '{' after enum")
		}
		return s, nil
	}
	s.Defined = true
	for !p.accept(RBRACE) {
		tok, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		en := &ast.Enumerator{Name: tok.Lexeme, Pos: posOf(tok)}
		if p.accept(ASSIGN) {
			if en.Value, err = p.parseConditional(); err != nil {
				return nil, err
			}
		}
		p.declare(en.Name, false)
		s.Enumerators = append(s.Enumerators, en)
		if !p.accept(COMMA) {
			if _, err := p.expect(RBRACE); err != nil {
				return nil, err
			}
			break
		}
	}
	return s, nil
}

type declMode int

const (
	declConcrete declMode = iota // a name is required
	declAbstract                 // no name allowed
	declEither                   // parameter declarations
)

func (p *Parser) parseDeclarator(mode declMode) (*ast.Declarator, error) {
	d := &ast.Declarator{Pos: posOf(p.peek())}
	for p.accept(STAR) {
		var ptr ast.Pointer
		for {
			if p.accept(CONST) {
				ptr.Qual |= ctypes.Const
			} else if p.accept(VOLATILE) {
				ptr.Qual |= ctypes.Volatile
			} else {
				break
			}
		}
		d.Pointers = append(d.Pointers, ptr)
	}
	dd, err := p.parseDirect(mode)
	if err != nil {
		return nil, err
	}
	d.Direct = dd
	return d, nil
}

// nestedFollows decides whether the '(' at the current position opens a
// nested declarator rather than a parameter list.
func (p *Parser) nestedFollows(mode declMode) bool {
	if mode == declConcrete {
		return true
	}
	next := p.peekNext()
	switch next.Type {
	case STAR, LPAREN, LBRACKET:
		return true
	case IDENTIFIER:
		return mode == declEither && !p.isTypedefName(next.Lexeme)
	}
	return false
}

func (p *Parser) parseDirect(mode declMode) (*ast.Direct, error) {
	tok := p.peek()
	var dd *ast.Direct
	switch {
	case tok.Type == IDENTIFIER && mode != declAbstract:
		p.advance()
		dd = &ast.Direct{Kind: ast.DirectIdent, Name: tok.Lexeme, Pos: posOf(tok)}
	case tok.Type == LPAREN && p.nestedFollows(mode):
		p.advance()
		nested, err := p.parseDeclarator(mode)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		dd = &ast.Direct{Kind: ast.DirectNested, Nested: nested, Pos: posOf(tok)}
	case mode == declConcrete:
		return nil, p.fmtError(tok, "expected identifier or '(', got %s", tok.Type)
	default:
		dd = &ast.Direct{Kind: ast.DirectEmpty, Pos: posOf(tok)}
	}

	for {
		tok := p.peek()
		switch tok.Type {
		case LBRACKET:
			p.advance()
			arr := &ast.Direct{Kind: ast.DirectArray, Inner: dd, Pos: posOf(tok)}
			if p.peek().Type != RBRACKET {
				size, err := p.parseConditional()
				if err != nil {
					return nil, err
				}
				arr.Size = size
			}
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
			dd = arr
		case LPAREN:
			p.advance()
			fn, err := p.parseParams(tok)
			if err != nil {
				return nil, err
			}
			fn.Inner = dd
			dd = fn
		default:
			return dd, nil
		}
	}
}

// parseParams parses a parameter-type-list or identifier-list. The opening
// parenthesis is already consumed.
func (p *Parser) parseParams(open Token) (*ast.Direct, error) {
	fn := &ast.Direct{Kind: ast.DirectFunction, Pos: posOf(open)}
	if p.accept(RPAREN) {
		return fn, nil
	}

	if tok := p.peek(); tok.Type == IDENTIFIER && !p.isTypedefName(tok.Lexeme) {
		for {
			tok, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			fn.Idents = append(fn.Idents, tok.Lexeme)
			if !p.accept(COMMA) {
				break
			}
		}
		_, err := p.expect(RPAREN)
		return fn, err
	}

	p.pushScope()
	defer p.popScope()
	pl := &ast.ParamList{}
	for {
		if p.accept(ELLIPSIS) {
			pl.Variadic = true
			break
		}
		start := p.peek()
		specs, err := p.parseDeclSpecs()
		if err != nil {
			return nil, err
		}
		if len(specs.Specs) == 0 && len(specs.Storage) == 0 && specs.Qual == 0 {
			return nil, p.fmtError(start, "expected parameter declarator, got %s", start.Type)
		}
		pd := &ast.ParamDecl{Specs: specs, Pos: posOf(start)}
		if t := p.peek().Type; t != COMMA && t != RPAREN {
			if pd.Decl, err = p.parseDeclarator(declEither); err != nil {
				return nil, err
			}
			p.declare(declaratorName(pd.Decl), false)
		}
		pl.Params = append(pl.Params, pd)
		if !p.accept(COMMA) {
			break
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	fn.Params = pl
	return fn, nil
}

func (p *Parser) parseInitializer() (*ast.Initializer, error) {
	tok := p.peek()
	if !p.accept(LBRACE) {
		e, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		return &ast.Initializer{Expr: e, Pos: posOf(tok)}, nil
	}
	init := &ast.Initializer{List: []*ast.Initializer{}, Pos: posOf(tok)}
	for !p.accept(RBRACE) {
		item, err := p.parseInitializer()
		if err != nil {
			return nil, err
		}
		init.List = append(init.List, item)
		if !p.accept(COMMA) {
			if _, err := p.expect(RBRACE); err != nil {
				return nil, err
			}
			break
		}
	}
	return init, nil
}

func (p *Parser) parseTypeName() (*ast.TypeName, error) {
	start := p.peek()
	specs, err := p.parseDeclSpecs()
	if err != nil {
		return nil, err
	}
	if len(specs.Specs) == 0 && specs.Qual == 0 {
		return nil, p.fmtError(start, "expected a type")
	}
	d, err := p.parseDeclarator(declAbstract)
	if err != nil {
		return nil, err
	}
	return &ast.TypeName{Specs: specs, Decl: d}, nil
}

//  Statements

func (p *Parser) parseCompound(newScope bool) (*ast.Compound, error) {
	open, err := p.expect(LBRACE)
	if err != nil {
		return nil, err
	}
	if newScope {
		p.pushScope()
		defer p.popScope()
	}
	c := &ast.Compound{Pos: posOf(open)}
	for !p.accept(RBRACE) {
		if p.peek().Type == EOF {
			return nil, p.fmtError(p.peek(), "expected '}' to match the '{' on line %d", open.Line)
		}
		var item ast.BlockItem
		if p.startsDeclaration() {
			item, err = p.parseDeclaration()
		} else {
			item, err = p.parseStatement()
		}
		if err != nil {
			return nil, err
		}
		c.Items = append(c.Items, item)
	}
	return c, nil
}

// parseParenExpr parses "(" expression ")".
func (p *Parser) parseParenExpr() (*ast.Expr, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	e, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *Parser) parseStatement() (ast.Stmt, error) {
	tok := p.peek()
	pos := posOf(tok)
	switch tok.Type {
	case LBRACE:
		return p.parseCompound(true)

	case IF:
		p.advance()
		cond, err := p.parseParenExpr()
		if err != nil {
			return nil, err
		}
		then, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		s := &ast.If{Cond: cond, Then: then, Pos: pos}
		if p.accept(ELSE) {
			if s.Else, err = p.parseStatement(); err != nil {
				return nil, err
			}
		}
		return s, nil

	case WHILE:
		p.advance()
		cond, err := p.parseParenExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		return &ast.While{Cond: cond, Body: body, Pos: pos}, nil

	case DO:
		p.advance()
		body, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(WHILE); err != nil {
			return nil, err
		}
		cond, err := p.parseParenExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &ast.DoWhile{Body: body, Cond: cond, Pos: pos}, nil

	case FOR:
		return p.parseFor()

	case SWITCH:
		p.advance()
		x, err := p.parseParenExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		return &ast.Switch{X: x, Body: body, Pos: pos}, nil

	case CASE:
		p.advance()
		v, err := p.parseConditional()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		body, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		return &ast.Case{Value: v, Body: body, Pos: pos}, nil

	case DEFAULT:
		p.advance()
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		body, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		return &ast.Default{Body: body, Pos: pos}, nil

	case GOTO:
		p.advance()
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &ast.Goto{Name: name.Lexeme, Pos: pos}, nil

	case CONTINUE, BREAK:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		if tok.Type == CONTINUE {
			return &ast.Continue{Pos: pos}, nil
		}
		return &ast.Break{Pos: pos}, nil

	case RETURN:
		p.advance()
		s := &ast.Return{Pos: pos}
		if p.peek().Type != SEMICOLON {
			x, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			s.X = x
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return s, nil

	case SEMICOLON:
		p.advance()
		return &ast.ExprStmt{Pos: pos}, nil

	case IDENTIFIER:
		if p.peekNext().Type == COLON {
			p.advance()
			p.advance()
			body, err := p.parseStatement()
			if err != nil {
				return nil, err
			}
			return &ast.Labeled{Name: tok.Lexeme, Body: body, Pos: pos}, nil
		}
	}

	x, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ast.ExprStmt{X: x, Pos: pos}, nil
}

func (p *Parser) parseFor() (*ast.For, error) {
	tok := p.advance()
	s := &ast.For{Pos: posOf(tok)}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	clauses := []struct {
		dst  **ast.Expr
		stop TokenType
	}{{&s.Init, SEMICOLON}, {&s.Cond, SEMICOLON}, {&s.Post, RPAREN}}
	for _, c := range clauses {
		if p.peek().Type != c.stop {
			e, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			*c.dst = e
		}
		if _, err := p.expect(c.stop); err != nil {
			return nil, err
		}
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	s.Body = body
	return s, nil
}

//  Expressions

func binary(op ast.Op, tok Token, x, y *ast.Expr) *ast.Expr {
	return &ast.Expr{Op: op, Args: []*ast.Expr{x, y}, Pos: posOf(tok)}
}

func unary(op ast.Op, tok Token, x *ast.Expr) *ast.Expr {
	return &ast.Expr{Op: op, Args: []*ast.Expr{x}, Pos: posOf(tok)}
}

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (*ast.Expr, error) {
	e, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == COMMA {
		tok := p.advance()
		right, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		e = binary(ast.Comma, tok, e, right)
	}
	return e, nil
}

var assignOps = map[TokenType]ast.Op{
	ASSIGN:         ast.Assign,
	STAR_ASSIGN:    ast.MulAssign,
	SLASH_ASSIGN:   ast.DivAssign,
	PERCENT_ASSIGN: ast.ModAssign,
	PLUS_ASSIGN:    ast.AddAssign,
	MINUS_ASSIGN:   ast.SubAssign,
	SHL_ASSIGN:     ast.ShlAssign,
	SHR_ASSIGN:     ast.ShrAssign,
	AND_ASSIGN:     ast.AndAssign,
	XOR_ASSIGN:     ast.XorAssign,
	OR_ASSIGN:      ast.OrAssign,
}

// parseAssignment handles the right-associative assignment operators.
func (p *Parser) parseAssignment() (*ast.Expr, error) {
	lhs, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	op, ok := assignOps[p.peek().Type]
	if !ok {
		return lhs, nil
	}
	tok := p.advance()
	rhs, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	return binary(op, tok, lhs, rhs), nil
}

func (p *Parser) parseConditional() (*ast.Expr, error) {
	cond, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if p.peek().Type != QUESTION {
		return cond, nil
	}
	tok := p.advance()
	then, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	els, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	return &ast.Expr{Op: ast.Ternary, Args: []*ast.Expr{cond, then, els}, Pos: posOf(tok)}, nil
}

// binaryLevels lists the left-associative binary operators from the lowest
// precedence to the highest.
var binaryLevels = []map[TokenType]ast.Op{
	{OR_LOGICAL: ast.LogOr},
	{AND_LOGICAL: ast.LogAnd},
	{PIPE: ast.BitOr},
	{CARET: ast.BitXor},
	{AND: ast.BitAnd},
	{EQUALS: ast.Eq, NOT_EQ: ast.Ne},
	{LESS: ast.Lt, GREATER: ast.Gt, LESS_EQ: ast.Le, GREATER_EQ: ast.Ge},
	{SHL_OP: ast.Shl, SHR_OP: ast.Shr},
	{PLUS: ast.Add, MINUS: ast.Sub},
	{STAR: ast.Mul, SLASH: ast.Div, PERCENT: ast.Mod},
}

func (p *Parser) parseBinary(level int) (*ast.Expr, error) {
	if level == len(binaryLevels) {
		return p.parseCast()
	}
	e, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := binaryLevels[level][p.peek().Type]
		if !ok {
			return e, nil
		}
		tok := p.advance()
		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		e = binary(op, tok, e, right)
	}
}

func (p *Parser) parseCast() (*ast.Expr, error) {
	tok := p.peek()
	if tok.Type != LPAREN || !p.startsTypeName(p.peekNext()) {
		return p.parseUnary()
	}
	p.advance()
	tn, err := p.parseTypeName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	x, err := p.parseCast()
	if err != nil {
		return nil, err
	}
	e := unary(ast.Cast, tok, x)
	e.Type = tn
	return e, nil
}

var unaryOps = map[TokenType]ast.Op{
	AND:   ast.AddrOf,
	STAR:  ast.Deref,
	PLUS:  ast.Plus,
	MINUS: ast.Minus,
	TILDE: ast.BitNot,
	NOT:   ast.LogNot,
}

func (p *Parser) parseUnary() (*ast.Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case PLUS_PLUS, MINUS_MINUS:
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if tok.Type == PLUS_PLUS {
			return unary(ast.PreInc, tok, x), nil
		}
		return unary(ast.PreDec, tok, x), nil

	case SIZEOF:
		p.advance()
		if p.peek().Type == LPAREN && p.startsTypeName(p.peekNext()) {
			p.advance()
			tn, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RPAREN); err != nil {
				return nil, err
			}
			return &ast.Expr{Op: ast.SizeofType, Type: tn, Pos: posOf(tok)}, nil
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unary(ast.SizeofExpr, tok, x), nil
	}

	if op, ok := unaryOps[tok.Type]; ok {
		p.advance()
		x, err := p.parseCast()
		if err != nil {
			return nil, err
		}
		return unary(op, tok, x), nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (*ast.Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch tok.Type {
		case LBRACKET:
			p.advance()
			idx, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
			e = unary(ast.Deref, tok, binary(ast.Add, tok, e, idx))
		case LPAREN:
			p.advance()
			call := &ast.Expr{Op: ast.Call, Args: []*ast.Expr{e}, Pos: posOf(tok)}
			for p.peek().Type != RPAREN {
				arg, err := p.parseAssignment()
				if err != nil {
					return nil, err
				}
				call.Args = append(call.Args, arg)
				if !p.accept(COMMA) {
					break
				}
			}
			if _, err := p.expect(RPAREN); err != nil {
				return nil, err
			}
			e = call
		case DOT, ARROW:
			p.advance()
			name, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			op := ast.Member
			if tok.Type == ARROW {
				op = ast.PtrMember
			}
			e = unary(op, tok, e)
			e.Name = name.Lexeme
		case PLUS_PLUS:
			p.advance()
			e = unary(ast.PostInc, tok, e)
		case MINUS_MINUS:
			p.advance()
			e = unary(ast.PostDec, tok, e)
		default:
			return e, nil
		}
	}
}

func (p *Parser) parsePrimary() (*ast.Expr, error) {
	tok := p.advance()
	pos := posOf(tok)
	switch tok.Type {
	case IDENTIFIER:
		if p.isTypedefName(tok.Lexeme) {
			return nil, p.fmtError(tok, "unexpected type name '%s': expected expression", tok.Lexeme)
		}
		return &ast.Expr{Op: ast.Ident, Name: tok.Lexeme, Pos: pos}, nil
	case INTEGER:
		lit, err := parseIntLiteral(tok.Lexeme)
		if err != nil {
			return nil, p.fmtError(tok, "%v", err)
		}
		return &ast.Expr{Op: ast.Constant, Lit: lit, Pos: pos}, nil
	case FLOATING:
		lit, err := parseFloatLiteral(tok.Lexeme)
		if err != nil {
			return nil, p.fmtError(tok, "%v", err)
		}
		return &ast.Expr{Op: ast.Constant, Lit: lit, Pos: pos}, nil
	case CHARACTER:
		v, _ := strconv.ParseUint(tok.Lexeme, 10, 8)
		return &ast.Expr{Op: ast.Constant, Lit: ast.Literal{Int: v, Char: true}, Pos: pos}, nil
	case STRING:
		s := tok.Lexeme
		for p.peek().Type == STRING {
			s += p.advance().Lexeme
		}
		return &ast.Expr{Op: ast.StringLit, Str: s, Pos: pos}, nil
	case LPAREN:
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, p.fmtError(tok, "expected expression, got %s (%q)", tok.Type, tok.Lexeme)
}

// parseIntLiteral decodes an integer constant with its u/l suffixes.
func parseIntLiteral(lexeme string) (ast.Literal, error) {
	digits := strings.TrimRight(lexeme, "uUlL")
	var lit ast.Literal
	for _, r := range strings.ToLower(lexeme[len(digits):]) {
		switch {
		case r == 'u' && !lit.Unsigned:
			lit.Unsigned = true
		case r == 'l' && !lit.Long:
			lit.Long = true
		default:
			return lit, fmt.Errorf("invalid suffix %q on integer constant", lexeme[len(digits):])
		}
	}
	lit.Decimal = digits == "0" || digits[0] != '0'
	body := digits
	isDigit := func(r rune) bool { return r >= '0' && r <= '9' }
	if h := strings.TrimPrefix(strings.ToLower(digits), "0x"); h != strings.ToLower(digits) {
		body = h
		isDigit = func(r rune) bool { return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') }
	}
	if strings.IndexFunc(body, func(r rune) bool { return !isDigit(r) }) >= 0 {
		return lit, fmt.Errorf("invalid integer constant %q", lexeme)
	}
	v, err := strconv.ParseUint(digits, 0, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return lit, fmt.Errorf("integer constant %s is too large", digits)
		}
		return lit, fmt.Errorf("invalid integer constant %q", lexeme)
	}
	lit.Int = v
	return lit, nil
}

func parseFloatLiteral(lexeme string) (ast.Literal, error) {
	digits := strings.TrimRight(lexeme, "fFlL")
	if len(lexeme)-len(digits) > 1 {
		return ast.Literal{}, fmt.Errorf("invalid suffix %q on floating constant", lexeme[len(digits):])
	}
	f, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return ast.Literal{}, fmt.Errorf("invalid floating constant %q", lexeme)
	}
	lit := ast.Literal{Float: f, IsFloat: true}
	switch lexeme[len(digits):] {
	case "f", "F":
		lit.Single = true
		lit.Float = float64(float32(f))
	case "l", "L":
		lit.Long = true
	}
	return lit, nil
}
