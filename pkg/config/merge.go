package config

import "dario.cat/mergo"

// MergeOrchestratorOptions overlays user-supplied overrides onto the literal
// defaults. Zero-valued fields in overrides are left at their default
// (mergo.WithOverride semantics).
func MergeOrchestratorOptions(overrides *OrchestratorOptions) (OrchestratorOptions, error) {
	merged := Defaults()
	if overrides == nil {
		return merged, nil
	}
	if err := mergo.Merge(&merged, overrides, mergo.WithOverride); err != nil {
		return OrchestratorOptions{}, err
	}
	return merged, nil
}
