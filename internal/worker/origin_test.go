package worker

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinOriginKeepsPathPrefix(t *testing.T) {
	prefixed, _ := url.Parse("http://app.test/converter")
	bare, _ := url.Parse("https://converter.example.com")

	testCases := []struct {
		origin *url.URL
		path   string
		query  string
		want   string
	}{
		{prefixed, "/index.html", "", "http://app.test/converter/index.html"},
		{prefixed, "/", "", "http://app.test/converter/"},
		{prefixed, "/styles.css", "v=1.0.2", "http://app.test/converter/styles.css?v=1.0.2"},
		{prefixed, "/a/../app.js", "", "http://app.test/converter/app.js"},
		{bare, "/", "", "https://converter.example.com/"},
		{bare, "/docs/", "", "https://converter.example.com/docs/"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, JoinOrigin(tc.origin, tc.path, tc.query).String(), "%s + %s", tc.origin, tc.path)
	}
}

func TestResolveEntry(t *testing.T) {
	origin, _ := url.Parse("http://app.test/converter/")

	got, err := resolveEntry(origin, "/app.js?v=2")
	require.NoError(t, err)
	assert.Equal(t, "http://app.test/converter/app.js?v=2", got.String())

	got, err = resolveEntry(origin, "https://cdn.jsdelivr.net/npm/chart.js")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.jsdelivr.net/npm/chart.js", got.String())

	for _, entry := range []string{"", "app.js", "//cdn.example.net/x.js"} {
		_, err := resolveEntry(origin, entry)
		assert.Error(t, err, "entry %q", entry)
	}
}
