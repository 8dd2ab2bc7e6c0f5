package tinyrpc

// ContextMap holds ambient per-call values such as identity flags.
type ContextMap map[string]any

// DeriveFunc computes per-call context values from the call handles. It is
// invoked at most once per call.
type DeriveFunc func(h Handles) (ContextMap, error)

// MergeContext combines the global context with the values returned by derive.
// Per-call keys take precedence. The result is always a fresh map; global is
// never modified.
func MergeContext(global ContextMap, derive DeriveFunc, h Handles) (ContextMap, error) {
	merged := make(ContextMap, len(global))
	for k, v := range global {
		merged[k] = v
	}
	if derive == nil {
		return merged, nil
	}

	perCall, err := derive(h)
	if err != nil {
		return nil, err
	}
	for k, v := range perCall {
		merged[k] = v
	}
	return merged, nil
}

// GetString returns the value for key if it is a string.
func (m ContextMap) GetString(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// GetBool returns the value for key if it is a bool.
func (m ContextMap) GetBool(key string) bool {
	b, _ := m[key].(bool)
	return b
}
