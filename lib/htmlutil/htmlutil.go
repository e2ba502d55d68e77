package htmlutil

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CellText is the trimmed text content of a node, non-breaking spaces count as whitespace.
func CellText(node *html.Node) string {
	return strings.TrimSpace(removeNonPrintable(GetText(node)))
}

// NormalizeText trims and collapses inner runs of whitespace into a single space.
func NormalizeText(s string) string {
	s = strings.TrimSpace(removeNonPrintable(s))
	return innerWhitespace.ReplaceAllString(s, " ")
}

// Form is the state of an html form as a browser would submit it.
type Form struct {
	Action string
	Method string
	Values url.Values
	// names of submit controls, these are only sent when explicitly chosen
	Submits []string

	submitValues map[string]string
}

// HasSubmit reports whether the form contains a submit control called `name`.
func (f Form) HasSubmit(name string) bool {
	for _, s := range f.Submits {
		if s == name {
			return true
		}
	}
	return false
}

// Submit returns the values sent when the submit control `name` is clicked, an empty name
// clicks the first submit control if there is one.
func (f Form) Submit(name string) (url.Values, error) {
	out := url.Values{}
	for k, v := range f.Values {
		out[k] = append([]string(nil), v...)
	}
	if name == "" {
		if len(f.Submits) == 0 {
			return out, nil
		}
		name = f.Submits[0]
	}
	if !f.HasSubmit(name) {
		return nil, fmt.Errorf("form has no submit control %q", name)
	}
	out.Set(name, f.submitValues[name])
	return out, nil
}

// ResolveAction resolves the form's action against the url of the page it came from.
func (f Form) ResolveAction(page *url.URL) (*url.URL, error) {
	if f.Action == "" {
		return page, nil
	}
	action, err := url.Parse(f.Action)
	if err != nil {
		return nil, err
	}
	return page.ResolveReference(action), nil
}

// ParseForm collects the successful controls of a form: text & hidden inputs, checked
// checkboxes/radios, selected options and textareas.
func ParseForm(form *goquery.Selection) Form {
	out := Form{
		Action: form.AttrOr("action", ""),
		Method: strings.ToUpper(form.AttrOr("method", "GET")),
		Values: url.Values{},

		submitValues: map[string]string{},
	}

	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := input.Attr("disabled"); disabled {
			return
		}
		value := input.AttrOr("value", "")

		switch strings.ToLower(input.AttrOr("type", "text")) {
		case "submit", "image":
			out.Submits = append(out.Submits, name)
			out.submitValues[name] = value
		case "button":
		case "checkbox", "radio":
			if _, checked := input.Attr("checked"); checked {
				if value == "" {
					value = "on"
				}
				out.Values.Add(name, value)
			}
		case "file", "reset":
		default:
			out.Values.Add(name, value)
		}
	})

	form.Find("button[name]").Each(func(_ int, button *goquery.Selection) {
		kind := strings.ToLower(button.AttrOr("type", "submit"))
		if kind == "submit" {
			name := button.AttrOr("name", "")
			out.Submits = append(out.Submits, name)
			out.submitValues[name] = button.AttrOr("value", "")
		}
	})

	form.Find("select[name]").Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", "")
		selected := sel.Find("option[selected]")
		if selected.Length() == 0 {
			selected = sel.Find("option").First()
		}
		if selected.Length() == 0 {
			return
		}
		value, ok := selected.Attr("value")
		if !ok {
			value = NormalizeText(selected.Text())
		}
		out.Values.Add(name, value)
	})

	form.Find("textarea[name]").Each(func(_ int, area *goquery.Selection) {
		out.Values.Add(area.AttrOr("name", ""), area.Text())
	})

	return out
}
