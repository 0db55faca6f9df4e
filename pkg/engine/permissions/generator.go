package permissions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type PolicyDocument struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

type Statement struct {
	Sid      string   `json:"Sid"`
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource string   `json:"Resource"`
}

// Handlers returns every known handler name, sorted.
func Handlers() []string {
	names := make([]string, 0, len(Catalog))
	for name := range Catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GeneratePolicy creates least-privilege IAM policies for the given handlers.
// If handlers is empty, it covers all of them. The execution role statement and the
// cross-account role statement are emitted separately so each can be attached where it belongs.
func GeneratePolicy(handlers []string) ([]byte, error) {
	if len(handlers) == 0 {
		handlers = Handlers()
	}

	execution := map[string]bool{}
	for _, perm := range CorePermissions() {
		execution[perm] = true
	}
	crossAccount := map[string]bool{}

	for _, h := range handlers {
		perms, ok := Catalog[h]
		if !ok {
			return nil, fmt.Errorf("unknown handler %q (known: %s)", h, strings.Join(Handlers(), ", "))
		}
		for _, p := range perms {
			execution[p] = true
		}
		for _, p := range CrossAccountCatalog[h] {
			crossAccount[p] = true
		}
	}

	policy := PolicyDocument{
		Version: "2012-10-17",
		Statement: []Statement{
			{
				Sid:      "CloudSentinelExecution",
				Effect:   "Allow",
				Action:   sortedKeys(execution),
				Resource: "*",
			},
		},
	}
	if len(crossAccount) > 0 {
		policy.Statement = append(policy.Statement, Statement{
			Sid:      "CloudSentinelCrossAccount",
			Effect:   "Allow",
			Action:   sortedKeys(crossAccount),
			Resource: "*",
		})
	}

	return json.MarshalIndent(policy, "", "  ")
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
