package kinetic

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ACLLoader loads ACL definitions from an external file for the SetACL
// builder call (§4.6). The core treats ACL loading as a pluggable
// collaborator so callers can source ACLs from wherever their
// deployment keeps them (a file, a secrets manager, a config service).
type ACLLoader interface {
	LoadACLs(path string) ([]ACLEntry, error)
}

// yamlACLFile is the on-disk shape DefaultACLLoader parses.
type yamlACLFile struct {
	ACLs []yamlACLEntry `yaml:"acls"`
}

type yamlACLEntry struct {
	Identity      int64          `yaml:"identity"`
	HmacKey       string         `yaml:"hmacKey"`
	HmacAlgorithm string         `yaml:"hmacAlgorithm"`
	Scopes        []yamlACLScope `yaml:"scopes"`
}

type yamlACLScope struct {
	Permission  string `yaml:"permission"`
	TlsRequired bool   `yaml:"tlsRequired"`
	KeyPrefix   string `yaml:"keyPrefix"`
}

// DefaultACLLoader reads a YAML file of ACL entries. It is the default,
// self-contained implementation of the ACL loader collaborator; a
// deployment backed by a different source (a database, a KMS-wrapped
// secret store) can supply its own ACLLoader instead.
type DefaultACLLoader struct{}

func (DefaultACLLoader) LoadACLs(path string) ([]ACLEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading acl file: %w", err)
	}
	var f yamlACLFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing acl file: %w", err)
	}
	out := make([]ACLEntry, 0, len(f.ACLs))
	for _, e := range f.ACLs {
		entry := ACLEntry{
			Identity:      e.Identity,
			Key:           []byte(e.HmacKey),
			HmacAlgorithm: aclHmacAlgorithm(e.HmacAlgorithm),
		}
		for _, s := range e.Scopes {
			entry.Scopes = append(entry.Scopes, ACLScope{
				Permission:  aclPermission(s.Permission),
				TlsRequired: s.TlsRequired,
				KeyPrefix:   []byte(s.KeyPrefix),
			})
		}
		out = append(out, entry)
	}
	return out, nil
}

// ACL permission values, named the way the wire's Security body enum
// would name them.
const (
	PermissionRead = iota
	PermissionWrite
	PermissionDelete
	PermissionRange
	PermissionSetup
	PermissionGetLog
	PermissionSecurity
)

func aclPermission(s string) int32 {
	switch s {
	case "read":
		return PermissionRead
	case "write":
		return PermissionWrite
	case "delete":
		return PermissionDelete
	case "range":
		return PermissionRange
	case "setup":
		return PermissionSetup
	case "getlog":
		return PermissionGetLog
	case "security":
		return PermissionSecurity
	default:
		return PermissionRead
	}
}

func aclHmacAlgorithm(s string) int32 {
	// Only HmacSHA1 is defined by the wire protocol today; the field
	// is kept so a future algorithm can be added without a schema
	// change.
	return 0
}
