package parser

import (
	"fmt"

	"github.com/IshaanNene/pricewatch/internal/config"
	"github.com/IshaanNene/pricewatch/internal/types"
)

// Selector resolves one extraction rule against a loaded page.
type Selector interface {
	// Select returns the non-empty values matched by rule, in document order.
	Select(page *types.Page, rule config.ParseRule) ([]string, error)
}

// SelectorFor returns the Selector implementation for the rule's type.
func SelectorFor(rule config.ParseRule) (Selector, error) {
	switch rule.Type {
	case "xpath":
		return XPathSelector{}, nil
	case "css", "":
		return CSSSelector{}, nil
	default:
		return nil, fmt.Errorf("unsupported rule type %q", rule.Type)
	}
}

// Select runs rule against page with the matching Selector.
func Select(page *types.Page, rule config.ParseRule) ([]string, error) {
	s, err := SelectorFor(rule)
	if err != nil {
		return nil, err
	}
	return s.Select(page, rule)
}
