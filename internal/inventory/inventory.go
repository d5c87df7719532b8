// Package inventory reads INI-style host inventories.
//
// Lines before the first [group] header belong to the implicit "ungrouped"
// group. That section always exists, so an explicit [ungrouped] header is a
// duplicate. Each host line is a host name optionally followed by key=value
// variables, e.g. "db1 ansible_host=10.0.0.5 ansible_port=2222".
package inventory

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/eniac111/ansimple/internal/types"
)

var (
	// ErrDuplicateSection is returned when a [group] header appears twice.
	ErrDuplicateSection = errors.New("duplicate inventory section")
	// ErrParse marks any other malformed inventory line.
	ErrParse = errors.New("inventory parse error")
)

// DuplicateSectionError reports a repeated group header.
type DuplicateSectionError struct {
	Section string
	Line    int
}

func (e *DuplicateSectionError) Error() string {
	return fmt.Sprintf("inventory line %d: section %q already exists", e.Line, e.Section)
}

func (e *DuplicateSectionError) Unwrap() error { return ErrDuplicateSection }

// ParseError reports a malformed inventory line.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("inventory line %d: %s", e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// Load reads the inventory file at path.
func Load(path string) (*types.Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	inv, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inv, nil
}

// Parse builds an inventory from INI-like text. Groups without hosts are not
// recorded; looking them up yields no hosts either way.
func Parse(data []byte) (*types.Inventory, error) {
	inv := types.NewInventory()
	seen := map[string]bool{types.UngroupedGroup: true}
	hostsSeen := map[string]bool{}
	section := types.UngroupedGroup

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, &ParseError{Line: lineNo, Reason: fmt.Sprintf("unterminated section header %q", line)}
			}
			name := strings.TrimSpace(line[1 : len(line)-1])
			if name == "" {
				return nil, &ParseError{Line: lineNo, Reason: "empty section name"}
			}
			if seen[name] {
				return nil, &DuplicateSectionError{Section: name, Line: lineNo}
			}
			seen[name] = true
			section = name
			hostsSeen = map[string]bool{}
			continue
		}

		host, err := parseHost(line)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Reason: err.Error()}
		}
		if hostsSeen[host.Name] {
			return nil, &ParseError{Line: lineNo, Reason: fmt.Sprintf("host %q listed twice in section %q", host.Name, section)}
		}
		hostsSeen[host.Name] = true
		inv.Add(section, host)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	return inv, nil
}

func parseHost(line string) (types.Host, error) {
	fields := strings.Fields(line)
	host := types.Host{Name: fields[0]}
	for _, kv := range fields[1:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return types.Host{}, fmt.Errorf("malformed host variable %q, want key=value", kv)
		}
		if host.Vars == nil {
			host.Vars = map[string]string{}
		}
		host.Vars[key] = value
	}
	return host, nil
}
