package httpx

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
)

// EmitFunc writes one list element to a streamed response.
type EmitFunc func(v any) error

// StreamData writes {"data":[...]} incrementally. produce is called once
// and emits elements one at a time; each element is flushed as it is
// written so large result sets are never buffered in full.
//
// If produce fails before emitting anything, the error is rendered with
// [WriteError] instead. A failure after the first element can no longer
// change the status, so the error is logged and the body is left
// unterminated, which clients see as a truncated document.
func StreamData(w http.ResponseWriter, r *http.Request, produce func(emit EmitFunc) error) {
	flusher, _ := w.(http.Flusher)
	started := false
	var buf bytes.Buffer

	start := func() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":[`))
		started = true
	}

	emitted := 0
	emit := func(v any) error {
		buf.Reset()
		if err := json.NewEncoder(&buf).Encode(v); err != nil {
			return err
		}
		if !started {
			start()
		}
		if emitted > 0 {
			_, _ = w.Write([]byte(","))
		}
		// Encode appends a newline; drop it inside the array.
		if _, err := w.Write(bytes.TrimRight(buf.Bytes(), "\n")); err != nil {
			return err
		}
		emitted++
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if err := produce(emit); err != nil {
		if !started {
			WriteError(w, r, err)
			return
		}
		slog.ErrorContext(r.Context(), "httpx: stream aborted",
			"path", r.URL.Path,
			"emitted", emitted,
			"error", err,
		)
		return
	}

	if !started {
		start()
	}
	_, _ = w.Write([]byte("]}\n"))
}
