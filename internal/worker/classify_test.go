package worker

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	origin, _ := url.Parse(shellOrigin)
	classifier := NewClassifier([]string{"api.frankfurter.dev"}, origin, nil)

	testCases := []struct {
		name   string
		url    string
		header http.Header
		want   Class
	}{
		{"rate latest", rateOrigin + "/v1/latest", nil, ClassRateData},
		{"rate history with query", rateOrigin + "/v1/2024-01-01..2024-02-01?base=USD&symbols=EUR", nil, ClassRateData},
		{"rate api wins over document", rateOrigin + "/", documentHeader(), ClassRateData},
		{"root document", shellOrigin + "/", nil, ClassShell},
		{"html page", shellOrigin + "/about.html", nil, ClassShell},
		{"script", shellOrigin + "/app.js", nil, ClassShell},
		{"font", shellOrigin + "/fonts/inter.woff2", nil, ClassShell},
		{"uppercase extension", shellOrigin + "/LOGO.PNG", nil, ClassShell},
		{"document anywhere", "https://cdn.example.net/page", documentHeader(), ClassShell},
		{"accept html", "https://cdn.example.net/page", http.Header{"Accept": []string{"text/html,application/xhtml+xml"}}, ClassShell},
		{"shell origin unknown extension", shellOrigin + "/data.bin", nil, ClassOther},
		{"cdn script", "https://cdn.jsdelivr.net/npm/chart.js", nil, ClassOther},
		{"cdn css on other host", "https://fonts.googleapis.com/css2.css", nil, ClassOther},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := getRequest(t, tc.url, tc.header)
			assert.Equal(t, tc.want, classifier.Classify(req))
		})
	}
}

func TestClassifyCustomExtensions(t *testing.T) {
	origin, _ := url.Parse(shellOrigin)
	classifier := NewClassifier(nil, origin, []string{"svg"})

	assert.Equal(t, ClassShell, classifier.Classify(getRequest(t, shellOrigin+"/icon.svg", nil)))
	assert.Equal(t, ClassOther, classifier.Classify(getRequest(t, shellOrigin+"/app.js", nil)))
	assert.Equal(t, ClassOther, classifier.Classify(nil))
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "rate-data", ClassRateData.String())
	assert.Equal(t, "shell", ClassShell.String())
	assert.Equal(t, "other", ClassOther.String())
}
