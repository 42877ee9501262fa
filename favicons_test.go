package main

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFavicons_LinksResolve(t *testing.T) {
	re := regexp.MustCompile(`href="/([^"]+)"`)

	refs := re.FindAllStringSubmatch(getFavicon(), -1)
	assert.NotEmpty(t, refs)
	for _, m := range refs {
		_, err := favicons.ReadFile(m[1])
		assert.NoError(t, err, "dead favicon link %q", m[1])
	}
}

func TestFavicons_ManifestServed(t *testing.T) {
	cfg := testConfig()
	errs := make(chan error, 1)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/favicons/site.webmanifest", nil)
	serveFavicons(cfg, errs)(w, req, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.Bytes())
}
