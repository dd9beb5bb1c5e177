package participant

import (
	"fmt"
	"sort"

	"github.com/szaher/mdtboard/internal/llm"
)

// Build constructs the participant roster for one discussion: specialists
// for each named specialty, plus custom participants keyed by name with
// their persona text. Names must be unique across both sets.
func Build(reg *Registry, specialties []string, custom map[string]string,
	client llm.Client, params ModelParams) ([]Participant, error) {
	seen := make(map[string]bool)
	var out []Participant

	for _, name := range specialties {
		if seen[name] {
			return nil, fmt.Errorf("duplicate participant %q", name)
		}
		spec, err := reg.Lookup(name)
		if err != nil {
			return nil, err
		}
		out = append(out, NewSpecialist(name, spec.Role, spec.Instructions, client, params))
		seen[name] = true
	}
	names := make([]string, 0, len(custom))
	for name := range custom {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("duplicate participant %q", name)
		}
		if custom[name] == "" {
			return nil, fmt.Errorf("custom participant %q has no persona", name)
		}
		out = append(out, NewCustom(name, custom[name], client, params))
		seen[name] = true
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no participants requested")
	}
	return out, nil
}
