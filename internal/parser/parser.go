package parser

import (
	"fmt"

	"loxvm/internal/lexer"
)

// ParseError is a single recovered syntax error with its source line.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Message)
}

// Parser is a recursive-descent parser, one function per precedence level,
// over a fixed token slice produced by lexer.Scanner.ScanTokens.
type Parser struct {
	tokens  []lexer.Token
	current int
	errors  []*ParseError
}

func NewParser(tokens []lexer.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse consumes every token and returns the top-level statement list. Any
// syntax errors encountered are collected and returned alongside whatever
// statements were recovered, so the caller can report them all at once.
func (p *Parser) Parse() ([]Stmt, []*ParseError) {
	var stmts []Stmt
	for !p.isAtEnd() {
		stmt := p.declaration()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, p.errors
}

// --- declarations ---

func (p *Parser) declaration() (stmt Stmt) {
	defer func() {
		if r := recover(); r != nil {
			p.synchronize()
			stmt = nil
		}
	}()

	switch {
	case p.match(lexer.TokenClass):
		return p.classDeclaration()
	case p.match(lexer.TokenFun):
		return p.function("function")
	case p.match(lexer.TokenVar):
		return p.varDeclaration()
	default:
		return p.statement()
	}
}

func (p *Parser) classDeclaration() Stmt {
	name := p.consume(lexer.TokenIdentifier, "Expect class name.")

	var super *Variable
	if p.match(lexer.TokenLess) {
		p.consume(lexer.TokenIdentifier, "Expect superclass name.")
		super = &Variable{Name: p.previous()}
	}

	p.consume(lexer.TokenLeftBrace, "Expect '{' before class body.")
	var methods []*FunctionStmt
	for !p.check(lexer.TokenRightBrace) && !p.isAtEnd() {
		methods = append(methods, p.function("method"))
	}
	p.consume(lexer.TokenRightBrace, "Expect '}' after class body.")

	return &ClassStmt{Name: name, Superclass: super, Methods: methods}
}

func (p *Parser) function(kind string) *FunctionStmt {
	name := p.consume(lexer.TokenIdentifier, "Expect "+kind+" name.")
	p.consume(lexer.TokenLeftParen, "Expect '(' after "+kind+" name.")
	var params []lexer.Token
	if !p.check(lexer.TokenRightParen) {
		for {
			if len(params) >= 255 {
				p.errorAt(p.peek(), "Can't have more than 255 parameters.")
			}
			params = append(params, p.consume(lexer.TokenIdentifier, "Expect parameter name."))
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRightParen, "Expect ')' after parameters.")
	p.consume(lexer.TokenLeftBrace, "Expect '{' before "+kind+" body.")
	body := p.block()
	return &FunctionStmt{Name: name, Params: params, Body: body}
}

func (p *Parser) varDeclaration() Stmt {
	name := p.consume(lexer.TokenIdentifier, "Expect variable name.")
	var init Expr
	if p.match(lexer.TokenEqual) {
		init = p.expression()
	}
	p.consume(lexer.TokenSemicolon, "Expect ';' after variable declaration.")
	return &VarStmt{Name: name, Initializer: init}
}

// --- statements ---

func (p *Parser) statement() Stmt {
	switch {
	case p.match(lexer.TokenPrint):
		return p.printStatement()
	case p.match(lexer.TokenIf):
		return p.ifStatement()
	case p.match(lexer.TokenReturn):
		return p.returnStatement()
	case p.match(lexer.TokenWhile):
		return p.whileStatement()
	case p.match(lexer.TokenFor):
		return p.forStatement()
	case p.match(lexer.TokenLeftBrace):
		return &BlockStmt{Statements: p.block()}
	default:
		return p.expressionStatement()
	}
}

func (p *Parser) printStatement() Stmt {
	value := p.expression()
	p.consume(lexer.TokenSemicolon, "Expect ';' after value.")
	return &PrintStmt{Expression: value}
}

func (p *Parser) returnStatement() Stmt {
	keyword := p.previous()
	var value Expr
	if !p.check(lexer.TokenSemicolon) {
		value = p.expression()
	}
	p.consume(lexer.TokenSemicolon, "Expect ';' after return value.")
	return &ReturnStmt{Keyword: keyword, Value: value}
}

func (p *Parser) ifStatement() Stmt {
	p.consume(lexer.TokenLeftParen, "Expect '(' after 'if'.")
	cond := p.expression()
	p.consume(lexer.TokenRightParen, "Expect ')' after if condition.")
	then := p.statement()
	var elseBranch Stmt
	if p.match(lexer.TokenElse) {
		elseBranch = p.statement()
	}
	return &IfStmt{Condition: cond, Then: then, Else: elseBranch}
}

func (p *Parser) whileStatement() Stmt {
	p.consume(lexer.TokenLeftParen, "Expect '(' after 'while'.")
	cond := p.expression()
	p.consume(lexer.TokenRightParen, "Expect ')' after condition.")
	body := p.statement()
	return &WhileStmt{Condition: cond, Body: body}
}

// forStatement desugars `for (init; cond; incr) body` into:
//
//	{ init; while (cond) { body; incr; } }
func (p *Parser) forStatement() Stmt {
	p.consume(lexer.TokenLeftParen, "Expect '(' after 'for'.")

	var initializer Stmt
	switch {
	case p.match(lexer.TokenSemicolon):
		initializer = nil
	case p.match(lexer.TokenVar):
		initializer = p.varDeclaration()
	default:
		initializer = p.expressionStatement()
	}

	var condition Expr
	if !p.check(lexer.TokenSemicolon) {
		condition = p.expression()
	}
	p.consume(lexer.TokenSemicolon, "Expect ';' after loop condition.")

	var increment Expr
	if !p.check(lexer.TokenRightParen) {
		increment = p.expression()
	}
	p.consume(lexer.TokenRightParen, "Expect ')' after for clauses.")

	body := p.statement()

	if increment != nil {
		body = &BlockStmt{Statements: []Stmt{body, &ExpressionStmt{Expression: increment}}}
	}
	if condition == nil {
		condition = &Literal{Value: true}
	}
	body = &WhileStmt{Condition: condition, Body: body}
	if initializer != nil {
		body = &BlockStmt{Statements: []Stmt{initializer, body}}
	}
	return body
}

func (p *Parser) block() []Stmt {
	var stmts []Stmt
	for !p.check(lexer.TokenRightBrace) && !p.isAtEnd() {
		stmts = append(stmts, p.declaration())
	}
	p.consume(lexer.TokenRightBrace, "Expect '}' after block.")
	return stmts
}

func (p *Parser) expressionStatement() Stmt {
	expr := p.expression()
	p.consume(lexer.TokenSemicolon, "Expect ';' after expression.")
	return &ExpressionStmt{Expression: expr}
}

// --- expressions, lowest to highest precedence ---

func (p *Parser) expression() Expr {
	return p.assignment()
}

func (p *Parser) assignment() Expr {
	expr := p.or()

	if p.match(lexer.TokenEqual) {
		equals := p.previous()
		value := p.assignment()

		switch target := expr.(type) {
		case *Variable:
			return &Assign{Name: target.Name, Value: value}
		case *Get:
			return &Set{Object: target.Object, Name: target.Name, Value: value}
		default:
			p.errorAt(equals, "Invalid assignment target.")
			return expr
		}
	}
	return expr
}

func (p *Parser) or() Expr {
	expr := p.and()
	for p.match(lexer.TokenOr) {
		op := p.previous()
		right := p.and()
		expr = &Logical{Left: expr, Op: op, Right: right}
	}
	return expr
}

func (p *Parser) and() Expr {
	expr := p.equality()
	for p.match(lexer.TokenAnd) {
		op := p.previous()
		right := p.equality()
		expr = &Logical{Left: expr, Op: op, Right: right}
	}
	return expr
}

func (p *Parser) equality() Expr {
	expr := p.comparison()
	for p.match(lexer.TokenBangEqual, lexer.TokenEqualEqual) {
		op := p.previous()
		right := p.comparison()
		expr = &Binary{Left: expr, Op: op, Right: right}
	}
	return expr
}

func (p *Parser) comparison() Expr {
	expr := p.term()
	for p.match(lexer.TokenGreater, lexer.TokenGreaterEqual, lexer.TokenLess, lexer.TokenLessEqual) {
		op := p.previous()
		right := p.term()
		expr = &Binary{Left: expr, Op: op, Right: right}
	}
	return expr
}

func (p *Parser) term() Expr {
	expr := p.factor()
	for p.match(lexer.TokenMinus, lexer.TokenPlus) {
		op := p.previous()
		right := p.factor()
		expr = &Binary{Left: expr, Op: op, Right: right}
	}
	return expr
}

func (p *Parser) factor() Expr {
	expr := p.unary()
	for p.match(lexer.TokenStar, lexer.TokenSlash) {
		op := p.previous()
		right := p.unary()
		expr = &Binary{Left: expr, Op: op, Right: right}
	}
	return expr
}

func (p *Parser) unary() Expr {
	if p.match(lexer.TokenBang, lexer.TokenMinus) {
		op := p.previous()
		right := p.unary()
		return &Unary{Op: op, Right: right}
	}
	return p.call()
}

func (p *Parser) call() Expr {
	expr := p.primary()
	for {
		switch {
		case p.match(lexer.TokenLeftParen):
			expr = p.finishCall(expr)
		case p.match(lexer.TokenDot):
			name := p.consume(lexer.TokenIdentifier, "Expect property name after '.'.")
			expr = &Get{Object: expr, Name: name}
		default:
			return expr
		}
	}
}

func (p *Parser) finishCall(callee Expr) Expr {
	var args []Expr
	if !p.check(lexer.TokenRightParen) {
		for {
			if len(args) >= 255 {
				p.errorAt(p.peek(), "Can't have more than 255 arguments.")
			}
			args = append(args, p.expression())
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	paren := p.consume(lexer.TokenRightParen, "Expect ')' after arguments.")
	return &Call{Callee: callee, Paren: paren, Arguments: args}
}

func (p *Parser) primary() Expr {
	switch {
	case p.match(lexer.TokenFalse):
		return &Literal{Value: false, Line: p.previous().Line}
	case p.match(lexer.TokenTrue):
		return &Literal{Value: true, Line: p.previous().Line}
	case p.match(lexer.TokenNil):
		return &Literal{Value: nil, Line: p.previous().Line}
	case p.match(lexer.TokenNumber):
		return &Literal{Value: parseNumber(p.previous().Lexeme), Line: p.previous().Line}
	case p.match(lexer.TokenString):
		lex := p.previous().Lexeme
		return &Literal{Value: lex[1 : len(lex)-1], Line: p.previous().Line}
	case p.match(lexer.TokenSuper):
		keyword := p.previous()
		p.consume(lexer.TokenDot, "Expect '.' after 'super'.")
		method := p.consume(lexer.TokenIdentifier, "Expect superclass method name.")
		return &Super{Keyword: keyword, Method: method}
	case p.match(lexer.TokenThis):
		return &This{Keyword: p.previous()}
	case p.match(lexer.TokenIdentifier):
		return &Variable{Name: p.previous()}
	case p.match(lexer.TokenLeftParen):
		expr := p.expression()
		p.consume(lexer.TokenRightParen, "Expect ')' after expression.")
		return &Grouping{Expression: expr}
	}

	p.errorAt(p.peek(), "Expect expression.")
	panic(&ParseError{Line: p.peek().Line, Message: "Expect expression."})
}

// --- token-stream plumbing ---

func (p *Parser) match(types ...lexer.TokenType) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) check(t lexer.TokenType) bool {
	if p.isAtEnd() {
		return false
	}
	return p.peek().Type == t
}

func (p *Parser) advance() lexer.Token {
	if !p.isAtEnd() {
		p.current++
	}
	return p.previous()
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Type == lexer.TokenEOF
}

func (p *Parser) peek() lexer.Token {
	return p.tokens[p.current]
}

func (p *Parser) previous() lexer.Token {
	return p.tokens[p.current-1]
}

func (p *Parser) consume(t lexer.TokenType, message string) lexer.Token {
	if p.check(t) {
		return p.advance()
	}
	p.errorAt(p.peek(), message)
	panic(&ParseError{Line: p.peek().Line, Message: message})
}

func (p *Parser) errorAt(tok lexer.Token, message string) {
	p.errors = append(p.errors, &ParseError{Line: tok.Line, Message: message})
}

// synchronize discards tokens until it reaches a likely statement boundary,
// so one syntax error does not cascade into a wall of spurious ones. A
// statement keyword at the error position is kept so parsing resumes there;
// every declaration consumes its leading keyword before it can fail, so this
// always makes progress.
func (p *Parser) synchronize() {
	for !p.isAtEnd() {
		switch p.peek().Type {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn:
			return
		}
		p.advance()
		if p.previous().Type == lexer.TokenSemicolon {
			return
		}
	}
}

func parseNumber(lexeme string) float64 {
	var n float64
	fmt.Sscanf(lexeme, "%g", &n)
	return n
}
