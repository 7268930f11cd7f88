package hydration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!DOCTYPE html>
<html><head><title>t</title></head>
<body>
  <div data-island="Counter" data-props='{"start":1}'><span placeholder>…</span></div>
  <div data-island="Chart" data-client="idle"></div>
  <div data-island="Gallery" data-props='{"client":"visible"}'></div>
  <div data-island="Broken" data-props='{oops'></div>
  <div data-island="Odd" data-client="later"></div>
  <script id="__SSRKIT_DATA__" type="application/json">{"url":"/posts/7","params":{}}</script>
</body></html>`

func TestInspect(t *testing.T) {
	report, err := Inspect(strings.NewReader(page))
	require.NoError(t, err)

	assert.Equal(t, "/posts/7", report.Data["url"])
	assert.Empty(t, report.Problems)
	require.Len(t, report.Placements, 5)

	counter := report.Placements[0]
	assert.Equal(t, "Counter", counter.Name)
	assert.Equal(t, "load", counter.Strategy)
	assert.Equal(t, "default", counter.StrategySource)
	assert.True(t, counter.HasPlaceholder)
	assert.Equal(t, map[string]any{"start": 1.0}, counter.Props)
	assert.True(t, counter.OK())

	assert.Equal(t, "idle", report.Placements[1].Strategy)
	assert.Equal(t, AttrClient, report.Placements[1].StrategySource)

	assert.Equal(t, "visible", report.Placements[2].Strategy)
	assert.Equal(t, "props.client", report.Placements[2].StrategySource)

	assert.False(t, report.Placements[3].OK())
	assert.Contains(t, report.Placements[3].Problems[0], "malformed data-props")

	assert.False(t, report.Placements[4].OK())
	assert.False(t, report.OK())
}

func TestInspectDataPayloadProblems(t *testing.T) {
	report, err := Inspect(strings.NewReader(`<html><body>
<script id="__SSRKIT_DATA__">{"params":{}}</script>
<script id="__SSRKIT_DATA__">{}</script>
</body></html>`))
	require.NoError(t, err)
	require.Len(t, report.Problems, 2)
	assert.Contains(t, report.Problems[0], "expected one")
	assert.Contains(t, report.Problems[1], "has no url")
}

func TestInspectWithoutIslands(t *testing.T) {
	report, err := Inspect(strings.NewReader(`<p>static</p>`))
	require.NoError(t, err)
	assert.Empty(t, report.Placements)
	assert.Nil(t, report.Data)
	assert.True(t, report.OK())
}

func TestSchedulerOnParsedDocument(t *testing.T) {
	doc, err := ParseDocument(strings.NewReader(page))
	require.NoError(t, err)

	m := &mountLog{}
	s := NewScheduler(&fakePlatform{}, m.mount)
	found := s.Run(FindIslands(doc, "Counter"), "Counter")

	require.Len(t, found, 1)
	assert.Equal(t, Hydrated, found[0].State)
	assert.Empty(t, FindIslands(doc, "Counter"), "the marker is removed once hydrated")
	assert.Len(t, FindIslands(doc, ""), 4)
}
