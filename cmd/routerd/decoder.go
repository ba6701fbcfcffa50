package main

import (
	"bytes"
	"time"

	"github.com/obsrouter/routercore/internal/event"
	"github.com/obsrouter/routercore/internal/tcpsource"
)

// lineDecoder frames a TCP stream on newlines and wraps each line as a log
// event's "message" field. Concrete wire protocols (syslog, GELF, JSON) are
// external-collaborator concerns; this is the minimal stand-in that lets
// routerd run end to end out of the box when no other codec is wired in
// front of the acceptor.
type lineDecoder struct {
	maxLineBytes int
}

func newLineDecoder(maxLineBytes int) *lineDecoder {
	if maxLineBytes <= 0 {
		maxLineBytes = 1 << 20
	}
	return &lineDecoder{maxLineBytes: maxLineBytes}
}

func (d *lineDecoder) Decode(data []byte) (tcpsource.Frame, int, error) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		if len(data) > d.maxLineBytes {
			return tcpsource.Frame{}, len(data), &tcpsource.DecodeError{
				Err:   errLineTooLong,
				Fatal: true,
			}
		}
		return tcpsource.Frame{}, 0, nil
	}

	line := bytes.TrimRight(data[:i], "\r")
	ev := event.NewLogEvent(time.Now())
	if err := ev.Set("message", event.StringValue(string(line))); err != nil {
		return tcpsource.Frame{}, i + 1, &tcpsource.DecodeError{Err: err, Fatal: false}
	}
	return tcpsource.Frame{Events: []*event.Event{ev}}, i + 1, nil
}

var errLineTooLong = lineTooLongError{}

type lineTooLongError struct{}

func (lineTooLongError) Error() string { return "routerd: line exceeds max line bytes" }
