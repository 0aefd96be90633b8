package membership

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
)

// BackchannelOffset is added to a replica's request port when the table
// does not name a backchannel port.
const BackchannelOffset = 100

var ErrBadTable = errors.New("membership: malformed replica table")

// Parse reads a replica table, one replica per line:
//
//	<id> <host>:<requestPort>[:<backchannelPort>]
//
// Blank lines and lines starting with '#' are skipped. Identities must be
// unique and cover 1..N.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	seen := make(map[int]bool)
	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadTable, lineno, err)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("%w: line %d: duplicate id %d", ErrBadTable, lineno, e.ID)
		}
		seen[e.ID] = true
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no replicas", ErrBadTable)
	}
	for id := 1; id <= len(entries); id++ {
		if !seen[id] {
			return nil, fmt.Errorf("%w: ids must cover 1..%d, missing %d", ErrBadTable, len(entries), id)
		}
	}
	return entries, nil
}

func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func parseLine(line string) (Entry, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return Entry{}, fmt.Errorf("want \"<id> <host>:<port>[:<port>]\", got %q", line)
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil || id < 1 {
		return Entry{}, fmt.Errorf("bad id %q", fields[0])
	}

	addr := fields[1]
	var back string
	if i := strings.LastIndex(addr, ":"); i > 0 && strings.Count(addr, ":") == 2 {
		addr, back = addr[:i], addr[i+1:]
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return Entry{}, err
	}
	reqPort, err := parsePort(port)
	if err != nil {
		return Entry{}, err
	}
	backPort := reqPort + BackchannelOffset
	if back != "" {
		if backPort, err = parsePort(back); err != nil {
			return Entry{}, err
		}
	}
	return Entry{ID: id, Host: host, RequestPort: reqPort, BackchannelPort: backPort}, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return 0, fmt.Errorf("bad port %q", s)
	}
	return p, nil
}
