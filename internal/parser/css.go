package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/pricewatch/internal/config"
	"github.com/IshaanNene/pricewatch/internal/types"
)

// CSSSelector extracts values using CSS selectors via goquery.
type CSSSelector struct{}

// Select implements Selector for CSS rules.
func (CSSSelector) Select(page *types.Page, rule config.ParseRule) ([]string, error) {
	doc, err := page.Document()
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var values []string
	doc.Find(rule.Selector).Each(func(i int, sel *goquery.Selection) {
		var val string

		switch rule.Attribute {
		case "", "text":
			val = strings.TrimSpace(sel.Text())
		case "html", "innerHTML":
			val, _ = sel.Html()
			val = strings.TrimSpace(val)
		default:
			val, _ = sel.Attr(rule.Attribute)
			val = strings.TrimSpace(val)
		}

		if val != "" {
			values = append(values, val)
		}
	})

	return values, nil
}
