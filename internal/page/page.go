// Package page renders the markup a host server embeds so the client entry
// and the island loaders can find their data: the route data script, island
// placeholders and a minimal document shell.
package page

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/conneroisu/ssrkit/internal/hydration"
)

// Data is the payload of the route data script.
type Data struct {
	URL    string         `json:"url"`
	Params map[string]any `json:"params"`
}

// DataScript renders the JSON script element the client entry reads.
func DataScript(url string, params map[string]any) templ.Component {
	if params == nil {
		params = map[string]any{}
	}
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		// json.Marshal escapes <, > and &, so the payload cannot close the
		// script element.
		payload, err := json.Marshal(Data{URL: url, Params: params})
		if err != nil {
			return fmt.Errorf("encoding %s payload: %w", hydration.DataScriptID, err)
		}
		_, err = fmt.Fprintf(w, `<script id="%s" type="application/json">%s</script>`, hydration.DataScriptID, payload)
		return err
	})
}

// Island renders the marker element of one island instance. An empty
// strategy leaves the choice to the loader; a nil placeholder renders an
// empty marker.
func Island(name, strategy string, props map[string]any, placeholder templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if name == "" {
			return fmt.Errorf("island name is empty")
		}
		if strategy != "" && !hydration.KnownStrategy(strategy) {
			return fmt.Errorf("island %s: unknown strategy %q", name, strategy)
		}

		if _, err := fmt.Fprintf(w, `<div %s="%s"`, hydration.AttrIsland, templ.EscapeString(name)); err != nil {
			return err
		}
		if strategy != "" {
			if _, err := fmt.Fprintf(w, ` %s="%s"`, hydration.AttrClient, templ.EscapeString(strategy)); err != nil {
				return err
			}
		}
		if props != nil {
			encoded, err := json.Marshal(props)
			if err != nil {
				return fmt.Errorf("island %s: encoding props: %w", name, err)
			}
			if _, err := fmt.Fprintf(w, ` %s="%s"`, hydration.AttrProps, templ.EscapeString(string(encoded))); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, ">"); err != nil {
			return err
		}
		if placeholder != nil {
			if _, err := fmt.Fprintf(w, `<div %s>`, hydration.AttrPlaceholder); err != nil {
				return err
			}
			if err := placeholder.Render(ctx, w); err != nil {
				return err
			}
			if _, err := io.WriteString(w, "</div>"); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</div>")
		return err
	})
}

// Text renders escaped text.
func Text(s string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, templ.EscapeString(s))
		return err
	})
}

// DocumentProps configures Document.
type DocumentProps struct {
	Title  string
	URL    string
	Params map[string]any
	// Scripts are module scripts loaded at the end of the body.
	Scripts []string
	Head    templ.Component
	Body    templ.Component
	// LiveReload, when set, is the websocket path the page reloads from.
	LiveReload string
}

// Document renders a complete page around body with the route data script.
func Document(props DocumentProps) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html><html><head><meta charset="utf-8"><title>%s</title>`, templ.EscapeString(props.Title)); err != nil {
			return err
		}
		if props.Head != nil {
			if err := props.Head.Render(ctx, w); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `</head><body><div id="app">`); err != nil {
			return err
		}
		if props.Body != nil {
			if err := props.Body.Render(ctx, w); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `</div>`); err != nil {
			return err
		}
		if err := DataScript(props.URL, props.Params).Render(ctx, w); err != nil {
			return err
		}
		for _, src := range props.Scripts {
			if _, err := fmt.Fprintf(w, `<script type="module" src="%s"></script>`, templ.EscapeString(src)); err != nil {
				return err
			}
		}
		if props.LiveReload != "" {
			if _, err := fmt.Fprintf(w, liveReloadScript, templ.EscapeString(props.LiveReload)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

const liveReloadScript = `<script>(function(){var p=location.protocol==="https:"?"wss://":"ws://";` +
	`var ws=new WebSocket(p+location.host+"%s");` +
	`ws.onmessage=function(e){try{var m=JSON.parse(e.data);if(m.type==="reload"){location.reload();}}catch(_){}};})();</script>`
