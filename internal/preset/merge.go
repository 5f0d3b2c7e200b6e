package preset

// deepMerge merges patch into base without touching either input: arrays
// are concatenated, nested maps merged key by key, scalars overwritten by
// the patch side.
func deepMerge(base, patch map[string]any) map[string]any {
	if len(patch) == 0 {
		return base
	}

	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, pv := range patch {
		if bv, ok := out[k]; ok {
			out[k] = mergeValue(bv, pv)
			continue
		}
		out[k] = pv
	}

	return out
}

func mergeValue(base, patch any) any {
	switch p := patch.(type) {
	case map[string]any:
		if b, ok := base.(map[string]any); ok {
			return deepMerge(b, p)
		}
	case []any:
		if b, ok := base.([]any); ok {
			merged := make([]any, 0, len(b)+len(p))
			merged = append(merged, b...)
			merged = append(merged, p...)
			return merged
		}
	}

	return patch
}
