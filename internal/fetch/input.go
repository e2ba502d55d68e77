package fetch

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
)

var ErrNoIdentifiers = errors.New("no identifiers provided")

// ReadIdentifiers parses a newline separated identifier list. Every line carries a one
// character prefix (the "A" of an A-number) that is dropped, blank lines are skipped.
func ReadIdentifiers(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id := strings.TrimSpace(line[1:])
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoIdentifiers
	}
	return ids, nil
}

func ReadIdentifiersFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadIdentifiers(f)
}
