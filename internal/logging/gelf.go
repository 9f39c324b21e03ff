package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGelfHandler returns a JSON handler that ships records to a Graylog
// GELF UDP input. The returned closer releases the socket.
func NewGelfHandler(address, level string) (slog.Handler, io.Closer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GELF writer for %s: %w", address, err)
	}
	return slog.NewJSONHandler(w, handlerOptions(parseLevel(level))), w, nil
}
