package islands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/conneroisu/ssrkit/internal/framework"
)

// Strategies are the hydration strategies a placement may request.
var Strategies = []string{"load", "idle", "visible"}

// DefaultStrategy is used when a placement names none.
const DefaultStrategy = "load"

type entryData struct {
	framework.IslandCode
	Name     string
	Selector string
}

var entryTemplate = template.Must(template.New("island").Funcs(template.FuncMap{"lit": jsString}).Parse(`{{.Import}}

function hydrateIsland(el) {
  const props = JSON.parse(el.dataset.props || '{}');
  el.querySelector('[placeholder]')?.remove();
  {{.Mount}};
}

function handleIslandLoading() {
  const islands = document.querySelectorAll({{lit .Selector}});
  islands.forEach(el => {
    try {
      const props = JSON.parse(el.dataset.props || '{}');
      const strategy = el.dataset.client || props.client || 'load';

      const hydrateThisIsland = () => {
        if (!el.hasAttribute('data-island')) {
          return;
        }
        el.removeAttribute('data-island');
        try {
          hydrateIsland(el);
        } catch (err) {
          console.error('[ssrkit] hydrating island ' + {{lit .Name}} + ' failed:', err);
        }
      };

      switch (strategy) {
        case 'idle':
          if ('requestIdleCallback' in window) {
            window.requestIdleCallback(hydrateThisIsland);
          } else {
            setTimeout(hydrateThisIsland, 0);
          }
          break;
        case 'visible':
          if ('IntersectionObserver' in window) {
            const observer = new IntersectionObserver((entries) => {
              if (entries.some(entry => entry.isIntersecting)) {
                observer.disconnect();
                hydrateThisIsland();
              }
            });
            observer.observe(el);
          } else {
            hydrateThisIsland();
          }
          break;
        case 'load':
        default:
          hydrateThisIsland();
          break;
      }
    } catch (err) {
      console.error('[ssrkit] island ' + {{lit .Name}} + ' has malformed props:', err);
    }
  });
}

if (typeof window !== 'undefined') {
  if (document.readyState === 'loading') {
    document.addEventListener('DOMContentLoaded', handleIslandLoading);
  } else {
    handleIslandLoading();
  }
}

export default Component;
`))

// GenerateEntry returns the loader source for one island component. name is
// the value of the data-island attribute the loader looks for.
func GenerateEntry(adapter framework.Adapter, componentFile, name string) (string, error) {
	code, err := adapter.Island(componentFile)
	if err != nil {
		return "", err
	}

	data := entryData{
		IslandCode: code,
		Name:       name,
		Selector:   fmt.Sprintf("[data-island=%q]", name),
	}

	var buf bytes.Buffer
	if err := entryTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("generating island entry for %s: %w", name, err)
	}
	return buf.String(), nil
}

func jsString(s string) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
