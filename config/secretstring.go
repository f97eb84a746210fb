package config

// SecretStringValue is what is shown instead of the secret in dumps and logs.
const SecretStringValue = "<secret>"

// SecretString holds credentials (fetch token) which must never end up in
// configuration dumps, debug reports or logs.
type SecretString string

// Reveal returns actual value, use it only when building outgoing requests.
func (s SecretString) Reveal() string {
	return string(s)
}

// String masks value when printed with fmt or zap.Stringer.
func (s SecretString) String() string {
	if len(s) == 0 {
		return ""
	}
	return SecretStringValue
}

// MarshalJSON marshals SecretString to JSON making sure that actual value is not visible.
func (s SecretString) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return []byte("\"" + SecretStringValue + "\""), nil
}

// MarshalYAML marshals SecretString to YAML making sure that actual value is not visible.
func (s SecretString) MarshalYAML() (any, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return SecretStringValue, nil
}
