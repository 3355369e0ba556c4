package pathauthz

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/radlab-io/authgate/claims"
	"github.com/radlab-io/authgate/utils"
)

type PolicyManager interface {
	UpsertRolePattern(role claims.Role, pattern string) error
	DeleteRolePattern(role claims.Role, pattern string)
	ReplacePolicy(*Policy) error
	PolicyJSON() (json.RawMessage, error)
	PolicyHash() (string, error)
}

type Matcher interface {
	IsAllowed(role claims.Role, path string) bool
	IsPublic(path string) bool
}

// CarveOut grants one feature area to an explicit set of roles before the
// generic role table is consulted.
type CarveOut struct {
	Path  string        `json:"path"`
	Roles []claims.Role `json:"roles"`
}

// Policy is the externally configured authorization surface: public path
// prefixes, carve-outs, and the role → path-pattern table. A pattern is a
// literal prefix or contains single-segment placeholders like
// "/api/radiation-results/[id]".
type Policy struct {
	PublicPathPrefixes []string                 `json:"publicPathPrefixes"`
	CarveOuts          []CarveOut               `json:"carveOuts"`
	RolePatterns       map[claims.Role][]string `json:"rolePatterns"`
}

func NewPolicy() *Policy {
	return &Policy{
		RolePatterns: make(map[claims.Role][]string),
	}
}

func (p *Policy) ComputeStableHash() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal policy: %w", err)
	}

	var jsonData interface{}

	err = json.Unmarshal(data, &jsonData)
	if err != nil {
		return "", fmt.Errorf("failed to unmarshal for canonicalization: %w", err)
	}

	canonicalizedData, err := utils.CanonicalizeJSON(jsonData)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize JSON: %w", err)
	}

	hash := sha256.Sum256([]byte(canonicalizedData))

	return hex.EncodeToString(hash[:]), nil
}

type compiledPattern struct {
	literal string
	re      *regexp.Regexp
}

// Table evaluates the policy per request. The policy is swappable at runtime
// under a RWMutex so config pushes never race in-flight decisions.
type Table struct {
	policy   *Policy
	compiled map[claims.Role][]compiledPattern
	mu       sync.RWMutex
}

func NewTable(policy *Policy) (*Table, error) {
	t := &Table{}

	if policy == nil {
		policy = NewPolicy()
	}

	if err := t.ReplacePolicy(policy); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Table) ReplacePolicy(policy *Policy) error {
	compiled := make(map[claims.Role][]compiledPattern)

	for role, patterns := range policy.RolePatterns {
		if _, err := claims.ParseRole(string(role)); err != nil {
			return fmt.Errorf("invalid role in policy: %w", err)
		}

		for _, pattern := range patterns {
			cp, err := compilePattern(pattern)
			if err != nil {
				return err
			}

			compiled[role] = append(compiled[role], cp)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.policy = policy
	t.compiled = compiled

	return nil
}

func (t *Table) UpsertRolePattern(role claims.Role, pattern string) error {
	if _, err := claims.ParseRole(string(role)); err != nil {
		return err
	}

	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, existing := range t.policy.RolePatterns[role] {
		if existing == pattern {
			return nil
		}
	}

	t.policy.RolePatterns[role] = append(t.policy.RolePatterns[role], pattern)
	t.compiled[role] = append(t.compiled[role], cp)

	return nil
}

func (t *Table) DeleteRolePattern(role claims.Role, pattern string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	patterns := t.policy.RolePatterns[role]
	compiled := t.compiled[role]

	for i, existing := range patterns {
		if existing == pattern {
			t.policy.RolePatterns[role] = append(patterns[:i], patterns[i+1:]...)
			t.compiled[role] = append(compiled[:i], compiled[i+1:]...)

			return
		}
	}
}

func (t *Table) IsPublic(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, prefix := range t.policy.PublicPathPrefixes {
		if matchPrefix(path, prefix) {
			return true
		}
	}

	return false
}

// IsAllowed reports whether the role may access the path. ADMIN passes
// unconditionally. Carve-outs are evaluated before the generic table so
// shared feature areas stay in one place instead of branching inside the
// matcher.
func (t *Table) IsAllowed(role claims.Role, path string) bool {
	if role == claims.RoleAdmin {
		return true
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, carveOut := range t.policy.CarveOuts {
		if !matchPrefix(path, carveOut.Path) {
			continue
		}

		for _, allowed := range carveOut.Roles {
			if allowed == role {
				return true
			}
		}
	}

	patterns := t.compiled[role]

	for _, cp := range patterns {
		if cp.literal == path {
			return true
		}
	}

	for _, cp := range patterns {
		if cp.re != nil {
			if cp.re.MatchString(path) {
				return true
			}

			continue
		}

		if matchPrefix(path, cp.literal) {
			return true
		}
	}

	return false
}

func (t *Table) PolicyJSON() (json.RawMessage, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	jsonData, err := json.Marshal(t.policy)
	if err != nil {
		return nil, err
	}

	return jsonData, nil
}

func (t *Table) PolicyHash() (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.policy.ComputeStableHash()
}

func matchPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

var placeholderSegment = regexp.MustCompile(`^\[[^/\]]+\]$`)

// compilePattern turns a pattern with placeholder segments into an anchored
// regexp matching exactly the same number of segments; a pattern without
// placeholders stays a literal.
func compilePattern(pattern string) (compiledPattern, error) {
	if !strings.Contains(pattern, "[") {
		return compiledPattern{literal: pattern}, nil
	}

	segments := strings.Split(pattern, "/")
	parts := make([]string, 0, len(segments))

	for _, segment := range segments {
		if placeholderSegment.MatchString(segment) {
			parts = append(parts, "[^/]+")
		} else {
			parts = append(parts, regexp.QuoteMeta(segment))
		}
	}

	re, err := regexp.Compile("^" + strings.Join(parts, "/") + "$")
	if err != nil {
		return compiledPattern{}, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
	}

	return compiledPattern{literal: pattern, re: re}, nil
}
