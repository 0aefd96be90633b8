package paxos

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/senutpal/quorumstore/internal/clock"
)

var ErrMalformed = errors.New("paxos: malformed message")

const clockExpr = `\(\d+, \d+\)`

var (
	prepareRe  = regexp.MustCompile(`^proposer prepare (` + clockExpr + `)$`)
	acceptRe   = regexp.MustCompile(`^proposer accept \[(.*)\] (` + clockExpr + `)$`)
	acceptorRe = regexp.MustCompile(`^acceptor (accept|choose) \[(.*)\] (` + clockExpr + `|null)$`)
	learnRe    = regexp.MustCompile(`^learn \[(.*)\](?: (` + clockExpr + `))?$`)
	valueRe    = regexp.MustCompile(`^(` + clockExpr + `) (.+)$`)
)

// ValidCommand reports whether command can travel inside a value.
func ValidCommand(command string) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("%w: empty command", ErrMalformed)
	}
	if strings.ContainsAny(command, "[]\r\n") {
		return fmt.Errorf("%w: command %q contains reserved characters", ErrMalformed, command)
	}
	return nil
}

func Encode(m Message) (string, error) {
	switch m := m.(type) {
	case Prepare:
		return fmt.Sprintf("proposer prepare %s", m.Number), nil
	case Accept:
		if err := ValidCommand(m.Value.Command); err != nil {
			return "", err
		}
		return fmt.Sprintf("proposer accept [%s] %s", m.Value, m.Number), nil
	case Promise:
		if m.Value == nil || m.Accepted == nil {
			return "acceptor accept [null] null", nil
		}
		if err := ValidCommand(m.Value.Command); err != nil {
			return "", err
		}
		return fmt.Sprintf("acceptor accept [%s] %s", *m.Value, *m.Accepted), nil
	case Accepted:
		if err := ValidCommand(m.Value.Command); err != nil {
			return "", err
		}
		return fmt.Sprintf("acceptor choose [%s] %s", m.Value, m.Number), nil
	case Reject:
		return "acceptor reject", nil
	case Learn:
		if err := ValidCommand(m.Value.Command); err != nil {
			return "", err
		}
		if m.Number == nil {
			return fmt.Sprintf("learn [%s]", m.Value), nil
		}
		return fmt.Sprintf("learn [%s] %s", m.Value, *m.Number), nil
	case Ack:
		return "ack", nil
	}
	return "", fmt.Errorf("%w: cannot encode %T", ErrMalformed, m)
}

func Decode(s string) (Message, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "acceptor reject":
		return Reject{}, nil
	case s == "ack":
		return Ack{}, nil
	case strings.HasPrefix(s, "proposer prepare"):
		m := prepareRe.FindStringSubmatch(s)
		if m == nil {
			break
		}
		n, err := clock.Parse(m[1])
		if err != nil {
			break
		}
		return Prepare{Number: n}, nil
	case strings.HasPrefix(s, "proposer accept"):
		m := acceptRe.FindStringSubmatch(s)
		if m == nil {
			break
		}
		v, err := decodeValue(m[1])
		if err != nil {
			return nil, err
		}
		n, err := clock.Parse(m[2])
		if err != nil {
			break
		}
		return Accept{Number: n, Value: v}, nil
	case strings.HasPrefix(s, "acceptor "):
		return decodeAcceptor(s)
	case strings.HasPrefix(s, "learn"):
		m := learnRe.FindStringSubmatch(s)
		if m == nil {
			break
		}
		v, err := decodeValue(m[1])
		if err != nil {
			return nil, err
		}
		l := Learn{Value: v}
		if m[2] != "" {
			n, err := clock.Parse(m[2])
			if err != nil {
				break
			}
			l.Number = &n
		}
		return l, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrMalformed, s)
}

func decodeAcceptor(s string) (Message, error) {
	m := acceptorRe.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	kind, rawValue, rawNumber := m[1], m[2], m[3]
	n, present, err := clock.ParseOptional(rawNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if kind == "accept" {
		if !present || rawValue == clock.Null {
			return Promise{}, nil
		}
		v, err := decodeValue(rawValue)
		if err != nil {
			return nil, err
		}
		return Promise{Accepted: &n, Value: &v}, nil
	}

	if !present {
		return nil, fmt.Errorf("%w: choose without number: %q", ErrMalformed, s)
	}
	v, err := decodeValue(rawValue)
	if err != nil {
		return nil, err
	}
	return Accepted{Number: n, Value: v}, nil
}

func decodeValue(s string) (Value, error) {
	m := valueRe.FindStringSubmatch(s)
	if m == nil {
		return Value{}, fmt.Errorf("%w: bad value %q", ErrMalformed, s)
	}
	id, err := clock.Parse(m[1])
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := ValidCommand(m[2]); err != nil {
		return Value{}, err
	}
	return Value{ID: id, Command: m[2]}, nil
}
