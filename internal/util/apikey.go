// Package util provides small shared helpers.
package util

// MaskKey returns a partially redacted display form of an API key.
// Keys longer than 8 characters keep the first and last 4 characters;
// shorter keys keep at most the first 4. The raw key is never returned.
func MaskKey(key string) string {
	if len(key) > 8 {
		return key[:4] + "..." + key[len(key)-4:]
	}
	if len(key) > 4 {
		return key[:4] + "..."
	}
	return key + "..."
}
