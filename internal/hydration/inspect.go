package hydration

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// DataScriptID is the id of the script element carrying {url, params}.
const DataScriptID = "__SSRKIT_DATA__"

// Placement describes one island placement found in a rendered page.
type Placement struct {
	Name           string         `json:"name"`
	Strategy       string         `json:"strategy"`
	StrategySource string         `json:"strategySource"`
	Props          map[string]any `json:"props,omitempty"`
	HasPlaceholder bool           `json:"hasPlaceholder"`
	Problems       []string       `json:"problems,omitempty"`
}

// OK reports whether the placement would hydrate cleanly.
func (p Placement) OK() bool { return len(p.Problems) == 0 }

// Report is the result of Inspect.
type Report struct {
	// Data is the decoded data payload, nil when the page has none.
	Data       map[string]any `json:"data,omitempty"`
	Placements []Placement    `json:"placements"`
	Problems   []string       `json:"problems,omitempty"`
}

// OK reports whether the page and every placement are well formed.
func (r *Report) OK() bool {
	if len(r.Problems) > 0 {
		return false
	}
	for _, p := range r.Placements {
		if !p.OK() {
			return false
		}
	}
	return true
}

// Inspect audits a rendered page against the runtime DOM contract: the
// single data payload element and every island placement's props and
// strategy.
func Inspect(r io.Reader) (*Report, error) {
	doc, err := ParseDocument(r)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	inspectData(doc, report)

	for _, el := range FindIslands(doc, "") {
		ne := el.(NodeElement)
		name, _ := ne.Attr(AttrIsland)
		p := Placement{Name: name, HasPlaceholder: ne.HasPlaceholder()}

		if name == "" {
			p.Problems = append(p.Problems, "empty data-island name")
		}

		props, err := ParseProps(ne)
		if err != nil {
			p.Problems = append(p.Problems, fmt.Sprintf("malformed data-props: %v", err))
			props = map[string]any{}
		} else {
			p.Props = props
		}

		p.Strategy, p.StrategySource = StrategyOf(ne, props)
		if !KnownStrategy(p.Strategy) {
			p.Problems = append(p.Problems, fmt.Sprintf("unknown strategy %q hydrates on load", p.Strategy))
		}

		report.Placements = append(report.Placements, p)
	}
	return report, nil
}

func inspectData(doc *html.Node, report *Report) {
	var scripts []*html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if id, ok := (NodeElement{Node: n}).Attr("id"); ok && id == DataScriptID {
				scripts = append(scripts, n)
			}
		}
		return true
	})

	switch len(scripts) {
	case 0:
		return
	case 1:
	default:
		report.Problems = append(report.Problems, fmt.Sprintf("%d elements with id %s, expected one", len(scripts), DataScriptID))
	}

	var text strings.Builder
	for c := scripts[0].FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			text.WriteString(c.Data)
		}
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(text.String()), &data); err != nil {
		report.Problems = append(report.Problems, fmt.Sprintf("malformed %s payload: %v", DataScriptID, err))
		return
	}
	if _, ok := data["url"]; !ok {
		report.Problems = append(report.Problems, DataScriptID+" payload has no url")
	}
	report.Data = data
}
