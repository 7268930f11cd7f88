package islands

import (
	"encoding/json"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/ssrkit/internal/framework"
)

// fakeDOM installs window, document and IntersectionObserver stand-ins and
// exposes hooks to drive them from the test script.
const fakeDOM = `
const mounted = [];
const errors = [];
console.error = (...args) => errors.push(args.map(String).join(' '));
globalThis.__mounted = mounted;

class Element {
  constructor(id, attrs) {
    this.id = id;
    this.attrs = { ...attrs };
    this.placeholder = 'data-placeholder' in attrs;
  }
  get dataset() {
    return { props: this.attrs['data-props'], client: this.attrs['data-client'] };
  }
  hasAttribute(name) { return name in this.attrs; }
  removeAttribute(name) { delete this.attrs[name]; }
  querySelector(sel) {
    if (sel !== '[placeholder]' || !this.placeholder) return null;
    return { remove: () => { this.placeholder = false; } };
  }
}

const elements = [];
const observers = [];
const idle = [];

globalThis.window = globalThis;
globalThis.requestIdleCallback = fn => idle.push(fn);
globalThis.IntersectionObserver = class {
  constructor(cb) { this.cb = cb; this.targets = []; this.disconnects = 0; observers.push(this); }
  observe(el) { this.targets.push(el); }
  disconnect() { this.disconnects++; }
  fire(isIntersecting) { this.cb(this.targets.map(target => ({ target, isIntersecting }))); }
};
globalThis.document = {
  readyState: 'complete',
  querySelectorAll(sel) {
    const name = JSON.parse(sel.slice('[data-island='.length, -1));
    return elements.filter(el => el.attrs['data-island'] === name);
  },
  addEventListener() {},
};

const add = (id, attrs) => elements.push(new Element(id, { 'data-island': 'Widget', ...attrs }));
const ids = () => mounted.map(m => m.id);
`

const loaderScenario = `
add('load', { 'data-props': '{"n":1}', 'data-placeholder': '' });
add('vis', { 'data-client': 'visible', 'data-props': '{"n":2}' });
add('idle', { 'data-client': 'idle' });
add('bad', { 'data-props': '{nope' });
add('fromProps', { 'data-props': '{"client":"visible"}' });
add('other', {});

await import('./entry.mjs');
const result = { afterLoad: ids() };

const vis = observers.find(o => o.targets[0].id === 'vis');
vis.fire(false);
result.afterMiss = ids();
vis.fire(true);
result.afterHit = ids();
result.visDisconnects = vis.disconnects;
vis.fire(true);
result.afterRefire = ids();

idle.splice(0).forEach(fn => fn());
result.afterIdle = ids();

result.observers = observers.length;
result.placeholderLeft = elements.find(el => el.id === 'load').placeholder;
result.loadProps = mounted.find(m => m.id === 'load').props;
result.markerLeft = elements.filter(el => 'data-island' in el.attrs).map(el => el.id);
result.errors = errors.length;
console.log(JSON.stringify(result));
`

type loaderResult struct {
	AfterLoad       []string       `json:"afterLoad"`
	AfterMiss       []string       `json:"afterMiss"`
	AfterHit        []string       `json:"afterHit"`
	AfterRefire     []string       `json:"afterRefire"`
	VisDisconnects  int            `json:"visDisconnects"`
	AfterIdle       []string       `json:"afterIdle"`
	Observers       int            `json:"observers"`
	PlaceholderLeft bool           `json:"placeholderLeft"`
	LoadProps       map[string]any `json:"loadProps"`
	MarkerLeft      []string       `json:"markerLeft"`
	Errors          int            `json:"errors"`
}

func TestGeneratedLoaderSchedulesIslands(t *testing.T) {
	node, err := exec.LookPath("node")
	if err != nil {
		t.Skip("node is not installed")
	}

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Widget.mjs"),
		"export default function (el, props) { globalThis.__mounted.push({ id: el.id, props }); }\n")

	src, err := GenerateEntry(framework.NewRegistry(nil).Lookup("default"), "./Widget.mjs", "Widget")
	require.NoError(t, err)
	writeFile(t, filepath.Join(dir, "entry.mjs"), src)
	writeFile(t, filepath.Join(dir, "main.mjs"), fakeDOM+loaderScenario)

	out, err := exec.Command(node, filepath.Join(dir, "main.mjs")).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		t.Fatalf("node failed: %v\n%s", err, exitErr.Stderr)
	}
	require.NoError(t, err)

	var res loaderResult
	require.NoError(t, json.Unmarshal(out, &res))

	assert.Equal(t, []string{"load", "other"}, res.AfterLoad, "load and the default strategy hydrate at once")
	assert.Equal(t, res.AfterLoad, res.AfterMiss, "visible waits for an intersection")
	assert.Equal(t, []string{"load", "other", "vis"}, res.AfterHit)
	assert.Equal(t, res.AfterHit, res.AfterRefire, "a visible island hydrates once")
	assert.Equal(t, 1, res.VisDisconnects)
	assert.Equal(t, []string{"load", "other", "vis", "idle"}, res.AfterIdle)
	assert.Equal(t, 2, res.Observers, "props.client selects visible when the attribute is absent")
	assert.False(t, res.PlaceholderLeft)
	assert.Equal(t, map[string]any{"n": float64(1)}, res.LoadProps)
	assert.ElementsMatch(t, []string{"bad", "fromProps"}, res.MarkerLeft)
	assert.Equal(t, 1, res.Errors, "only the malformed island reports an error")
}
