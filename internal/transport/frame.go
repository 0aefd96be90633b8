package transport

import (
	"fmt"
	"strings"

	"github.com/senutpal/quorumstore/internal/clock"
)

// Frame is one datagram: the sender's clock and the message body.
//
//	(counter, owner):<body>
type Frame struct {
	Clock clock.Clock
	Body  string
}

func (f Frame) From() int { return f.Clock.Owner }

func EncodeFrame(f Frame) string {
	return f.Clock.String() + ":" + f.Body
}

func DecodeFrame(s string) (Frame, error) {
	s = strings.TrimRight(s, "\r\n\x00")
	i := strings.Index(s, ":")
	if i < 0 {
		return Frame{}, fmt.Errorf("%w: no clock tag in %q", ErrMalformed, s)
	}
	c, err := clock.Parse(s[:i])
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Frame{Clock: c, Body: s[i+1:]}, nil
}
