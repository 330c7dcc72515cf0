package contracts

// Contains reports whether id is a member of set. Identifiers are compared
// by exact string equality.
func Contains(set []string, id string) bool {
	for _, s := range set {
		if s == id {
			return true
		}
	}
	return false
}

// Covers reports whether every required identifier is present in available.
// It is a subset test: extra available identifiers never matter.
func Covers(available, required []string) bool {
	for _, id := range required {
		if !Contains(available, id) {
			return false
		}
	}
	return true
}

// Missing returns the required identifiers absent from available, in the
// order they appear in required. The result is never nil.
func Missing(required, available []string) []string {
	out := []string{}
	for _, id := range required {
		if !Contains(available, id) {
			out = append(out, id)
		}
	}
	return out
}
