package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// cacheStatusHeader tells clients whether a view came from memory.
const cacheStatusHeader = "X-Cache"

// storedView is a captured 2xx response replayed to later readers.
type storedView struct {
	status      int
	contentType string
	body        []byte
}

func (v storedView) replay(c *gin.Context) {
	c.Header(cacheStatusHeader, "HIT")
	c.Data(v.status, v.contentType, v.body)
	c.Abort()
}

// recordingWriter tees the handler's body into buf.
type recordingWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache serves repeated GET requests for the same URL from store for ttl.
// Only 2xx responses are kept. A request carrying "Cache-Control: no-cache"
// skips the lookup and refreshes the entry. Writers that change the
// underlying views flush store.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.URL.RequestURI()
		if c.GetHeader("Cache-Control") != "no-cache" {
			if v, ok := store.Get(key); ok {
				v.(storedView).replay(c)
				return
			}
		}

		c.Header(cacheStatusHeader, "MISS")
		rw := &recordingWriter{ResponseWriter: c.Writer, buf: new(bytes.Buffer)}
		c.Writer = rw
		c.Next()

		status := rw.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}
		store.Set(key, storedView{
			status:      status,
			contentType: rw.Header().Get("Content-Type"),
			body:        bytes.Clone(rw.buf.Bytes()),
		}, ttl)
	}
}
