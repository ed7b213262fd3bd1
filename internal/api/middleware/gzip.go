package middleware

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

type gzipWriter struct {
	gin.ResponseWriter
	zw *gzip.Writer
}

func (w *gzipWriter) Write(b []byte) (int, error) {
	return w.zw.Write(b)
}

func (w *gzipWriter) WriteString(s string) (int, error) {
	return w.zw.Write([]byte(s))
}

// WriteHeader drops any length set by the handler; it would describe the
// uncompressed body
func (w *gzipWriter) WriteHeader(code int) {
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(code)
}

// Gzip compresses responses for clients that accept it. Dump output is
// line oriented text and shrinks well.
func Gzip(level int) gin.HandlerFunc {
	pool := sync.Pool{New: func() interface{} {
		zw, err := gzip.NewWriterLevel(nil, level)
		if err != nil {
			zw, _ = gzip.NewWriterLevel(nil, gzip.DefaultCompression)
		}
		return zw
	}}
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") ||
			strings.Contains(c.GetHeader("Connection"), "Upgrade") {
			c.Next()
			return
		}
		zw := pool.Get().(*gzip.Writer)
		zw.Reset(c.Writer)
		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")
		c.Writer = &gzipWriter{ResponseWriter: c.Writer, zw: zw}
		defer func() {
			_ = zw.Close()
			zw.Reset(nil)
			pool.Put(zw)
		}()
		c.Next()
	}
}
