package parser

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"

	"github.com/IshaanNene/pricewatch/internal/config"
	"github.com/IshaanNene/pricewatch/internal/types"
)

// XPathSelector extracts values using XPath expressions.
type XPathSelector struct{}

// Select implements Selector for XPath rules.
func (XPathSelector) Select(page *types.Page, rule config.ParseRule) ([]string, error) {
	doc, err := page.Node()
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	nodes, err := htmlquery.QueryAll(doc, rule.Selector)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}

	var values []string
	for _, node := range nodes {
		var val string

		switch rule.Attribute {
		case "", "text":
			val = strings.TrimSpace(htmlquery.InnerText(node))
		case "html", "innerHTML":
			val = strings.TrimSpace(htmlquery.OutputHTML(node, false))
		default:
			val = strings.TrimSpace(htmlquery.SelectAttr(node, rule.Attribute))
		}

		if val != "" {
			values = append(values, val)
		}
	}

	return values, nil
}
