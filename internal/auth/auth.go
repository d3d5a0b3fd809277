package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"slices"
	"strings"
)

const (
	// RoleReader may inspect schemas and partitions, count rows and run queries.
	RoleReader = "reader"
	// RoleExporter may write table exports to the object store.
	RoleExporter = "exporter"
)

var knownRoles = []string{RoleReader, RoleExporter}

type Identity struct {
	Principal string
	Roles     []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

// StaticAPIKeyValidator checks keys from configuration. Keys are held as SHA-256
// digests so lookups do not compare raw secrets.
type StaticAPIKeyValidator struct {
	identities map[[sha256.Size]byte]Identity
}

// NewStaticAPIKeyValidator parses "key:principal:role|role" entries separated by commas.
func NewStaticAPIKeyValidator(raw string) (*StaticAPIKeyValidator, error) {
	v := &StaticAPIKeyValidator{identities: make(map[[sha256.Size]byte]Identity)}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return v, nil
	}

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		key, identity, err := parseKeyEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid static key entry %q: %w", entry, err)
		}
		digest := sha256.Sum256([]byte(key))
		if _, dup := v.identities[digest]; dup {
			return nil, fmt.Errorf("invalid static key entry %q: duplicate key", entry)
		}
		v.identities[digest] = identity
	}
	return v, nil
}

func parseKeyEntry(entry string) (string, Identity, error) {
	parts := strings.Split(entry, ":")
	if len(parts) != 3 {
		return "", Identity{}, fmt.Errorf("expected key:principal:role|role")
	}
	key, principal := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if key == "" || principal == "" {
		return "", Identity{}, fmt.Errorf("empty key or principal")
	}

	var roles []string
	for _, role := range strings.Split(parts[2], "|") {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if !slices.Contains(knownRoles, role) {
			return "", Identity{}, fmt.Errorf("unknown role %q", role)
		}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return "", Identity{}, fmt.Errorf("at least one role is required")
	}
	slices.Sort(roles)
	return key, Identity{Principal: principal, Roles: slices.Compact(roles)}, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	if apiKey == "" {
		return Identity{}, false
	}
	identity, ok := v.identities[sha256.Sum256([]byte(apiKey))]
	return identity, ok
}
