// Package xmlutil extracts typed values from RWS response bodies.
//
// RWS resources are XHTML documents in which each value is carried by
// an element (usually a span) whose class attribute names the field,
// e.g. <span class="lvalue">1</span>.
package xmlutil

import (
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/pkg/errors"
)

// Parse parses an RWS response body
func Parse(body string) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "parse response body")
	}
	return doc, nil
}

// ClassSelector returns the compiled expression selecting every element
// below the context node whose class attribute equals class
func ClassSelector(class string) (*xpath.Expr, error) {
	if strings.ContainsAny(class, `'"[]`) {
		return nil, errors.Errorf("invalid class name %q", class)
	}
	expr, err := xpath.Compile(fmt.Sprintf(".//*[@class='%s']", class))
	if err != nil {
		return nil, errors.Wrapf(err, "class selector %q", class)
	}
	return expr, nil
}

// FindClass returns every element below top whose class is class
func FindClass(top *xmlquery.Node, class string) ([]*xmlquery.Node, error) {
	expr, err := ClassSelector(class)
	if err != nil {
		return nil, err
	}
	return xmlquery.QuerySelectorAll(top, expr), nil
}

// ClassText returns the trimmed text of the first element below top
// whose class is class. ok is false if there is no such element.
func ClassText(top *xmlquery.Node, class string) (text string, ok bool) {
	expr, err := ClassSelector(class)
	if err != nil {
		return "", false
	}
	n := xmlquery.QuerySelector(top, expr)
	if n == nil {
		return "", false
	}
	return strings.TrimSpace(n.InnerText()), true
}
