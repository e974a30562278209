package compiler

import (
	"context"

	"github.com/google/uuid"
)

// SupportedVersion is the only workflow document version this compiler accepts.
const SupportedVersion = "0.1"

// Fetcher resolves the content behind an import URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Parser turns workflow documents into a flattened ParsedChain, resolving
// imports through its Fetcher as it goes.
type Parser struct {
	fetcher Fetcher
}

func NewParser(fetcher Fetcher) *Parser {
	return &Parser{fetcher: fetcher}
}

// ParseWorkflow parses a full workflow document. sourceURL, when set, names
// the document itself so it cannot import itself.
func (p *Parser) ParseWorkflow(ctx context.Context, content string, sourceURL *string) (*ParsedChain, error) {
	nodes, err := parseDocument(content)
	if err != nil {
		return nil, err
	}

	version := firstArgOf(nodes, "version")
	if version == nil {
		return nil, &MissingRequiredError{Field: "version", Context: "workflow root"}
	}
	if *version != SupportedVersion {
		return nil, &UnsupportedVersionError{Version: *version}
	}

	triggers := argsOf(nodes, "triggers")
	if len(triggers) == 0 {
		return nil, &MissingRequiredError{Field: "triggers", Context: "workflow root"}
	}

	chainNode := firstNamed(nodes, "chain")
	if chainNode == nil {
		return nil, &MissingRequiredError{Field: "chain", Context: "workflow root"}
	}
	if chainNode.children == nil {
		return nil, &MissingRequiredError{Field: "chain children", Context: "chain node"}
	}

	defaultMachine := firstArgOf(chainNode.children, "machine")
	if defaultMachine == nil {
		return nil, &MissingRequiredError{Field: "machine", Context: "chain node"}
	}

	visited := map[string]struct{}{}
	if sourceURL != nil {
		visited[*sourceURL] = struct{}{}
	}

	var fragments []*ParsedFragment
	sequence := 0
	for _, n := range chainNode.children {
		if n.name == "machine" {
			continue
		}
		parsed, err := p.parseNode(ctx, n, *defaultMachine, visited, nil)
		if err != nil {
			return nil, err
		}
		for _, frag := range parsed {
			// Fragments nested under a group keep the sequence their group
			// assigned; only top-level ones advance the chain order.
			if frag.ParentID == nil {
				frag.Sequence = sequence
				sequence++
			}
			fragments = append(fragments, frag)
		}
	}

	return &ParsedChain{
		ID:             uuid.New(),
		Triggers:       triggers,
		DefaultMachine: *defaultMachine,
		Fragments:      fragments,
	}, nil
}

// parseFragmentFile parses an imported document, which may only contain
// fragment and parallel nodes at its top level.
func (p *Parser) parseFragmentFile(ctx context.Context, content, sourceURL, defaultMachine string, visited map[string]struct{}) ([]*ParsedFragment, error) {
	nodes, err := parseDocument(content)
	if err != nil {
		return nil, err
	}

	var fragments []*ParsedFragment
	for _, n := range nodes {
		if n.name != "fragment" && n.name != "parallel" {
			return nil, &InvalidImportNodeError{Node: n.name}
		}
		parsed, err := p.parseNode(ctx, n, defaultMachine, visited, nil)
		if err != nil {
			return nil, err
		}
		for _, frag := range parsed {
			// Nested imports already stamped their own origin.
			if frag.SourceURL == nil {
				u := sourceURL
				frag.SourceURL = &u
			}
			fragments = append(fragments, frag)
		}
	}
	return fragments, nil
}

func (p *Parser) parseNode(ctx context.Context, n *node, defaultMachine string, visited map[string]struct{}, parentID *uuid.UUID) ([]*ParsedFragment, error) {
	switch n.name {
	case "fragment":
		return p.parseFragment(ctx, n, defaultMachine, visited, parentID)
	case "parallel":
		return p.parseParallel(ctx, n, defaultMachine, visited, parentID)
	default:
		return nil, &UnknownNodeError{Node: n.name}
	}
}

func (p *Parser) parseFragment(ctx context.Context, n *node, defaultMachine string, visited map[string]struct{}, parentID *uuid.UUID) ([]*ParsedFragment, error) {
	fromURL := n.childArg("from")
	runScript := n.childArg("run")

	if fromURL != nil && runScript != nil {
		return nil, ErrMutualExclusion
	}
	if fromURL == nil && runScript == nil {
		return nil, ErrNoContent
	}

	if fromURL != nil {
		return p.resolveImport(ctx, *fromURL, defaultMachine, visited, parentID)
	}

	machine := n.childArg("machine")
	if machine == nil {
		m := defaultMachine
		machine = &m
	}

	frag := newInlineParsed(*runScript)
	frag.Machine = machine
	frag.Condition = n.childArg("condition")
	frag.ParentID = parentID
	return []*ParsedFragment{frag}, nil
}

// resolveImport fetches and expands one import. The URL stays in visited only
// while its own subtree is being resolved, so a document reachable along two
// separate paths resolves fine while a true cycle still fails.
func (p *Parser) resolveImport(ctx context.Context, url, defaultMachine string, visited map[string]struct{}, parentID *uuid.UUID) ([]*ParsedFragment, error) {
	if _, ok := visited[url]; ok {
		return nil, &CircularImportError{URL: url}
	}
	visited[url] = struct{}{}
	defer delete(visited, url)

	content, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		if IsError(err) {
			return nil, err
		}
		return nil, &FetchError{URL: url, Reason: err.Error()}
	}

	fragments, err := p.parseFragmentFile(ctx, content, url, defaultMachine, visited)
	if err != nil {
		return nil, err
	}

	if parentID != nil {
		for _, frag := range fragments {
			if frag.ParentID == nil {
				frag.ParentID = parentID
			}
		}
	}
	return fragments, nil
}

func (p *Parser) parseParallel(ctx context.Context, n *node, defaultMachine string, visited map[string]struct{}, parentID *uuid.UUID) ([]*ParsedFragment, error) {
	group := newGroupParsed()
	group.ParentID = parentID
	groupID := group.ID

	result := []*ParsedFragment{group}
	childSequence := 0
	for _, childNode := range n.children {
		parsed, err := p.parseNode(ctx, childNode, defaultMachine, visited, &groupID)
		if err != nil {
			return nil, err
		}
		for _, frag := range parsed {
			// Direct children order within the group; deeper descendants
			// were sequenced by their own parent.
			if frag.ParentID != nil && *frag.ParentID == groupID {
				frag.Sequence = childSequence
				childSequence++
			}
			result = append(result, frag)
		}
	}
	return result, nil
}

func firstArgOf(nodes []*node, name string) *string {
	n := firstNamed(nodes, name)
	if n == nil {
		return nil
	}
	return n.firstArg()
}

func argsOf(nodes []*node, name string) []string {
	n := firstNamed(nodes, name)
	if n == nil {
		return nil
	}
	return n.args
}
