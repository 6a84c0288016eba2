package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Gear lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42
	TokenFloat      // 3.14, 1.5e10
	TokenString     // "hello"
	TokenIdentifier // foo, Bar

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenComma     // ,
	TokenSemicolon // ;
	TokenDot       // .
	TokenSafeDot   // ?.

	// Operators
	TokenAssign // =
	TokenPlus   // +
	TokenMinus  // -
	TokenStar   // *
	TokenSlash  // /
	TokenPct    // %
	TokenBang   // !
	TokenEq     // ==
	TokenNe     // !=
	TokenLt     // <
	TokenLe     // <=
	TokenGt     // >
	TokenGe     // >=
	TokenAnd    // &&
	TokenOr     // ||

	// Keywords
	TokenImport
	TokenNative
	TokenFunc
	TokenType_
	TokenLet
	TokenVar
	TokenIf
	TokenElse
	TokenWhile
	TokenReturn
	TokenNew
	TokenThis
	TokenTrue
	TokenFalse
	TokenNull
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenInteger:    "INTEGER",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenLParen:     "'('",
	TokenRParen:     "')'",
	TokenLBrace:     "'{'",
	TokenRBrace:     "'}'",
	TokenComma:      "','",
	TokenSemicolon:  "';'",
	TokenDot:        "'.'",
	TokenSafeDot:    "'?.'",
	TokenAssign:     "'='",
	TokenPlus:       "'+'",
	TokenMinus:      "'-'",
	TokenStar:       "'*'",
	TokenSlash:      "'/'",
	TokenPct:        "'%'",
	TokenBang:       "'!'",
	TokenEq:         "'=='",
	TokenNe:         "'!='",
	TokenLt:         "'<'",
	TokenLe:         "'<='",
	TokenGt:         "'>'",
	TokenGe:         "'>='",
	TokenAnd:        "'&&'",
	TokenOr:         "'||'",
	TokenImport:     "import",
	TokenNative:     "native",
	TokenFunc:       "func",
	TokenType_:      "type",
	TokenLet:        "let",
	TokenVar:        "var",
	TokenIf:         "if",
	TokenElse:       "else",
	TokenWhile:      "while",
	TokenReturn:     "return",
	TokenNew:        "new",
	TokenThis:       "this",
	TokenTrue:       "true",
	TokenFalse:      "false",
	TokenNull:       "null",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the actual text of the token
	Pos     Position // position in source
	End     Position // position just past the token
}

func (t Token) String() string {
	if t.Literal != "" {
		return fmt.Sprintf("%s(%q)@%d:%d", t.Type, t.Literal, t.Pos.Line, t.Pos.Column)
	}
	return fmt.Sprintf("%s@%d:%d", t.Type, t.Pos.Line, t.Pos.Column)
}

// keywords maps reserved words to their token types.
var keywords = map[string]TokenType{
	"import": TokenImport,
	"native": TokenNative,
	"func":   TokenFunc,
	"type":   TokenType_,
	"let":    TokenLet,
	"var":    TokenVar,
	"if":     TokenIf,
	"else":   TokenElse,
	"while":  TokenWhile,
	"return": TokenReturn,
	"new":    TokenNew,
	"this":   TokenThis,
	"true":   TokenTrue,
	"false":  TokenFalse,
	"null":   TokenNull,
}

// LookupIdent returns the keyword token type for ident, or TokenIdentifier.
func LookupIdent(ident string) TokenType {
	if t, ok := keywords[ident]; ok {
		return t
	}
	return TokenIdentifier
}
