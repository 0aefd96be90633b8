package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var ErrBadInventory = errors.New("store: bad inventory")

// LoadInventory reads "<product> <quantity>" lines. Blank lines and lines
// starting with # are skipped.
func LoadInventory(r io.Reader) (map[string]int, error) {
	inv := make(map[string]int)
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: line %d: %q", ErrBadInventory, lineNo, line)
		}
		q, err := strconv.Atoi(fields[1])
		if err != nil || q < 0 {
			return nil, fmt.Errorf("%w: line %d: quantity %q", ErrBadInventory, lineNo, fields[1])
		}
		inv[fields[0]] = q
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return inv, nil
}

func LoadInventoryFile(path string) (map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadInventory(f)
}
