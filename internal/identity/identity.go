// Package identity extracts the operator and node behind a sentry client name.
package identity

import (
	_ "embed"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/malbeclabs/blockprop/internal/dataset"
	"github.com/malbeclabs/blockprop/internal/stats"
	"gopkg.in/yaml.v3"
)

//go:embed names.yaml
var namesYAML []byte

type namesConfig struct {
	Prefixes          []string `yaml:"prefixes"`
	Reserved          []string `yaml:"reserved"`
	Ignored           []string `yaml:"ignored"`
	RedactedValue     string   `yaml:"redacted_value"`
	MinUsernameLength int      `yaml:"min_username_length"`
}

// Parser parses client names. Matching of prefixes, reserved and ignored values is case
// insensitive.
type Parser struct {
	prefixes map[string]struct{}
	reserved map[string]struct{}
	ignored  map[string]struct{}
	redacted string
	minLen   int
}

var (
	defaultParser     *Parser
	defaultParserOnce sync.Once
	defaultParserErr  error
)

func NewParser() (*Parser, error) {
	return newParserFromYAML(namesYAML)
}

// DefaultParser returns a shared Parser built from the embedded configuration.
func DefaultParser() (*Parser, error) {
	defaultParserOnce.Do(func() {
		defaultParser, defaultParserErr = NewParser()
	})
	return defaultParser, defaultParserErr
}

func newParserFromYAML(data []byte) (*Parser, error) {
	var cfg namesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse names config: %w", err)
	}
	if len(cfg.Prefixes) == 0 {
		return nil, fmt.Errorf("names config has no prefixes")
	}
	return &Parser{
		prefixes: lowerSet(cfg.Prefixes),
		reserved: lowerSet(cfg.Reserved),
		ignored:  lowerSet(cfg.Ignored),
		redacted: cfg.RedactedValue,
		minLen:   cfg.MinUsernameLength,
	}, nil
}

func lowerSet(values []string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[strings.ToLower(v)] = struct{}{}
	}
	return m
}

func (p *Parser) isPrefix(s string) bool {
	_, ok := p.prefixes[strings.ToLower(s)]
	return ok
}

func (p *Parser) isReserved(s string) bool {
	_, ok := p.reserved[strings.ToLower(s)]
	return ok
}

// Username returns the operator segment of a client name. For a known prefix it is the
// second segment, or the third when the second is reserved; otherwise it is the first
// segment that is neither a prefix nor reserved.
func (p *Parser) Username(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if _, ok := p.ignored[strings.ToLower(name)]; ok {
		return "", false
	}

	parts := strings.Split(name, "/")
	if len(parts) < 2 {
		return "", false
	}

	if p.isPrefix(parts[0]) && len(parts[1]) >= p.minLen {
		username := strings.TrimSpace(parts[1])
		if p.isReserved(username) && len(parts) >= 3 {
			return strings.TrimSpace(parts[2]), true
		}
		return username, true
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if len(part) >= p.minLen && !p.isPrefix(part) && !p.isReserved(part) {
			return part, true
		}
	}
	return "", false
}

// NodeID returns the node segment of a client name: the third segment, or the second when
// there are only two.
func (p *Parser) NodeID(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	parts := strings.Split(name, "/")
	if len(parts) >= 3 {
		if id := strings.TrimSpace(parts[2]); id != "" {
			return id, true
		}
	}
	if len(parts) == 2 {
		if id := strings.TrimSpace(parts[1]); id != "" {
			return id, true
		}
	}
	return "", false
}

// Redacted reports whether a geo value has been scrubbed.
func (p *Parser) Redacted(value string) bool {
	return value == p.redacted
}

// FilterNode returns the observations whose client name resolves to nodeID.
func (p *Parser) FilterNode(obs *stats.Observations, nodeID string) (*stats.Observations, error) {
	names, err := obs.Column(dataset.FieldClientName)
	if err != nil {
		return nil, err
	}
	cache := make(map[string]string)
	return obs.Filter(func(i int) bool {
		id, ok := cache[names[i]]
		if !ok {
			id, _ = p.NodeID(names[i])
			cache[names[i]] = id
		}
		return id != "" && id == nodeID
	}), nil
}

// FilterUser returns the observations whose client name resolves to username.
func (p *Parser) FilterUser(obs *stats.Observations, username string) (*stats.Observations, error) {
	names, err := obs.Column(dataset.FieldClientName)
	if err != nil {
		return nil, err
	}
	cache := make(map[string]string)
	return obs.Filter(func(i int) bool {
		user, ok := cache[names[i]]
		if !ok {
			user, _ = p.Username(names[i])
			cache[names[i]] = user
		}
		return user != "" && user == username
	}), nil
}

// Usernames returns the sorted distinct usernames found in obs.
func (p *Parser) Usernames(obs *stats.Observations) ([]string, error) {
	names, err := obs.Column(dataset.FieldClientName)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	users := make(map[string]struct{})
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if user, ok := p.Username(name); ok {
			users[user] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(users)), nil
}

// Username parses name with the default parser.
func Username(name string) (string, bool) {
	p, err := DefaultParser()
	if err != nil {
		return "", false
	}
	return p.Username(name)
}

// NodeID parses name with the default parser.
func NodeID(name string) (string, bool) {
	p, err := DefaultParser()
	if err != nil {
		return "", false
	}
	return p.NodeID(name)
}

// FilterNode filters obs with the default parser.
func FilterNode(obs *stats.Observations, nodeID string) (*stats.Observations, error) {
	p, err := DefaultParser()
	if err != nil {
		return nil, err
	}
	return p.FilterNode(obs, nodeID)
}
