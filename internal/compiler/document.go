package compiler

// node is one statement in a workflow document: a name, zero or more string
// arguments, and an optional brace-delimited child block.
type node struct {
	name     string
	args     []string
	children []*node
	line     int
}

// firstArg returns the first argument of n, or nil.
func (n *node) firstArg() *string {
	if len(n.args) == 0 {
		return nil
	}
	return &n.args[0]
}

// childNamed returns the first child of n with the given name, or nil.
func (n *node) childNamed(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// childArg returns the first argument of the first child named name, or nil.
func (n *node) childArg(name string) *string {
	c := n.childNamed(name)
	if c == nil {
		return nil
	}
	return c.firstArg()
}

// firstNamed returns the first top-level node with the given name, or nil.
func firstNamed(nodes []*node, name string) *node {
	for _, n := range nodes {
		if n.name == name {
			return n
		}
	}
	return nil
}

// parseDocument turns source text into a flat list of top-level nodes.
func parseDocument(input string) ([]*node, error) {
	p := &docParser{lex: newLexer(input)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	nodes, err := p.parseNodes()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, &SyntaxError{Line: p.tok.line, Detail: "unexpected '}'"}
	}
	return nodes, nil
}

type docParser struct {
	lex *lexer
	tok token
}

func (p *docParser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

// parseNodes reads nodes until a '}' or the end of input, consuming neither.
func (p *docParser) parseNodes() ([]*node, error) {
	var nodes []*node
	for {
		for p.tok.kind == tokTerm {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if p.tok.kind == tokEOF || p.tok.kind == tokRBrace {
			return nodes, nil
		}
		n, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
}

func (p *docParser) parseNode() (*node, error) {
	if p.tok.kind != tokIdent {
		return nil, &SyntaxError{Line: p.tok.line, Detail: "expected node name, found " + p.tok.kind.String()}
	}
	n := &node{name: p.tok.text, line: p.tok.line}
	if err := p.advance(); err != nil {
		return nil, err
	}
	for p.tok.kind == tokString {
		n.args = append(n.args, p.tok.text)
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if p.tok.kind == tokLBrace {
		if err := p.advance(); err != nil {
			return nil, err
		}
		children, err := p.parseNodes()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRBrace {
			return nil, &SyntaxError{Line: n.line, Detail: "unclosed '{' in node " + n.name}
		}
		// An empty block is distinct from no block at all.
		if children == nil {
			children = []*node{}
		}
		n.children = children
		if err := p.advance(); err != nil {
			return nil, err
		}
		// A closed child block ends the node, with or without a newline.
		return n, nil
	}
	switch p.tok.kind {
	case tokTerm:
		if err := p.advance(); err != nil {
			return nil, err
		}
	case tokEOF, tokRBrace:
	default:
		return nil, &SyntaxError{Line: p.tok.line, Detail: "unexpected " + p.tok.kind.String() + " after node " + n.name}
	}
	return n, nil
}
