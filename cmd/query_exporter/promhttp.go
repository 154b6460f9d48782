package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/queryexporter/query-exporter/internal/executor"
	"github.com/queryexporter/query-exporter/internal/metrics"
)

const (
	contentTypeHeader     = "Content-Type"
	contentLengthHeader   = "Content-Length"
	contentEncodingHeader = "Content-Encoding"
	acceptEncodingHeader  = "Accept-Encoding"
)

// scrapeHandler runs every aperiodic query, clears expired series, then
// gathers and encodes metrics, honoring the Prometheus-supplied scrape
// timeout header and gzip negotiation the way sql_exporter's promhttp.go
// does for its own Exporter.
func scrapeHandler(exec *executor.Executor, registry *metrics.Registry, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := scrapeContext(req)
		defer cancel()

		exec.ClearExpiredSeries(time.Now())
		exec.RunAperiodic(ctx)

		gatherer := prometheus.Gatherers{registry.Gatherer()}
		mfs, err := gatherer.Gather()
		if err != nil {
			level.Warn(logger).Log("msg", "error gathering metrics", "err", err)
			if len(mfs) == 0 {
				http.Error(w, "no metrics gathered: "+err.Error(), http.StatusInternalServerError)
				return
			}
		}

		contentType := expfmt.Negotiate(req.Header)
		buf := getBuf()
		defer giveBuf(buf)
		writer, encoding := decorateWriter(req, buf)
		enc := expfmt.NewEncoder(writer, contentType)
		var errs prometheus.MultiError
		for _, mf := range mfs {
			if err := enc.Encode(mf); err != nil {
				errs = append(errs, err)
				level.Debug(logger).Log("msg", "error encoding metric family", "family", mf.GetName(), "err", err)
			}
		}
		if closer, ok := writer.(io.Closer); ok {
			closer.Close()
		}
		if errs.MaybeUnwrap() != nil && buf.Len() == 0 {
			http.Error(w, "no metrics encoded: "+errs.Error(), http.StatusInternalServerError)
			return
		}

		header := w.Header()
		header.Set(contentTypeHeader, string(contentType))
		header.Set(contentLengthHeader, fmt.Sprint(buf.Len()))
		if encoding != "" {
			header.Set(contentEncodingHeader, encoding)
		}
		w.Write(buf.Bytes())
	})
}

// scrapeContext derives a deadline from Prometheus' scrape timeout header,
// if present; queries slower than that are better cut short than left to
// pile up behind a missed scrape.
func scrapeContext(req *http.Request) (context.Context, context.CancelFunc) {
	ctx := req.Context()
	v := req.Header.Get("X-Prometheus-Scrape-Timeout-Seconds")
	if v == "" {
		return context.WithCancel(ctx)
	}
	seconds, err := strconv.ParseFloat(v, 64)
	if err != nil || seconds <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(seconds*float64(time.Second)))
}

var bufPool sync.Pool

func getBuf() *bytes.Buffer {
	buf := bufPool.Get()
	if buf == nil {
		return &bytes.Buffer{}
	}
	return buf.(*bytes.Buffer)
}

func giveBuf(buf *bytes.Buffer) {
	buf.Reset()
	bufPool.Put(buf)
}

// decorateWriter wraps writer in a gzip writer if the request accepts it,
// returning the resulting "Content-Encoding" header value (empty if not).
func decorateWriter(request *http.Request, writer io.Writer) (w io.Writer, encoding string) {
	header := request.Header.Get(acceptEncodingHeader)
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "gzip" || strings.HasPrefix(part, "gzip;") {
			return gzip.NewWriter(writer), "gzip"
		}
	}
	return writer, ""
}
