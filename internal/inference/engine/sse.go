package engine

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// SSEReader pulls server-sent events one at a time from a response body.
type SSEReader struct {
	br *bufio.Reader
}

func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{br: bufio.NewReaderSize(r, 64<<10)}
}

// Next returns the next event name and data payload. Multi-line data is joined
// with "\n". At end of input it returns io.EOF.
func (s *SSEReader) Next() (string, string, error) {
	var (
		eventName string
		dataLines []string
	)
	for {
		line, err := s.br.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) && len(dataLines) > 0 {
				return eventName, strings.Join(dataLines, "\n"), nil
			}
			return "", "", err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if len(dataLines) > 0 {
				return eventName, strings.Join(dataLines, "\n"), nil
			}
			eventName = ""
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}
