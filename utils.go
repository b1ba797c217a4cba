package splitasset

import (
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"strings"
)

func parseURI(uri string) (u *url.URL, err error) {
	u, err = url.Parse(uri)
	if err == nil && u.Scheme == "" {
		u.Scheme = "http"
	}
	return
}

// joinURL joins base and elem with exactly one slash between them.
func joinURL(base, elem string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(elem, "/")
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(ioutil.Discard, body)
	_ = body.Close()
}

func readAll(r *http.Response) (body []byte, statusCode int, err error) {
	statusCode = r.StatusCode
	body, err = ioutil.ReadAll(r.Body)
	_ = r.Body.Close()
	return
}

func statusOK(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

func isDir(path string) bool {
	s, err := os.Stat(path)
	if err != nil {
		return false
	}
	return s.IsDir()
}
