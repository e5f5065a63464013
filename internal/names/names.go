package names

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
)

// ErrEmptyPool is returned by Choose when the pool holds no names.
var ErrEmptyPool = errors.New("no names found")

// Pool is an immutable list of names. It is safe for concurrent use.
type Pool struct {
	names []string
}

// New creates a pool from names. The slice is copied.
func New(names []string) *Pool {
	return &Pool{names: append([]string(nil), names...)}
}

// Load reads a pool from a file with one name per line. Blank lines are
// skipped and surrounding whitespace is trimmed.
func Load(path string) (*Pool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open names file: %w", err)
	}
	defer f.Close()

	p, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read names file %s: %w", path, err)
	}
	return p, nil
}

// Read builds a pool from newline-delimited names.
func Read(r io.Reader) (*Pool, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &Pool{names: names}, nil
}

// Len returns the number of names in the pool.
func (p *Pool) Len() int {
	return len(p.names)
}

// Choose returns a uniformly random name.
func (p *Pool) Choose() (string, error) {
	if len(p.names) == 0 {
		return "", ErrEmptyPool
	}
	return p.names[rand.IntN(len(p.names))], nil
}
