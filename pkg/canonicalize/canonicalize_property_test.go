package canonicalize

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: objects that differ only in construction order serialize to
// identical bytes.
func TestCanonicalDeterminism_InsertionOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("key insertion order never changes canonical bytes", prop.ForAll(
		func(keys []string, values []string) bool {
			forward := make(map[string]any)
			reverse := make(map[string]any)
			n := len(keys)
			if len(values) < n {
				n = len(values)
			}
			for i := 0; i < n; i++ {
				forward[keys[i]] = map[string]any{"v": values[i], "i": i}
			}
			for i := n - 1; i >= 0; i-- {
				if _, seen := reverse[keys[i]]; seen {
					continue
				}
				reverse[keys[i]] = forward[keys[i]]
			}

			a, errA := Marshal(forward)
			b, errB := Marshal(reverse)
			if errA != nil || errB != nil {
				return false
			}
			return bytes.Equal(a, b)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}

// Property: canonical output is a fixed point.
// Marshal(Unmarshal(Marshal(v))) == Marshal(v)
func TestCanonicalDeterminism_Idempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("re-canonicalizing canonical output is stable", prop.ForAll(
		func(keys []string, values []string, n int) bool {
			obj := make(map[string]any)
			for i := 0; i < len(keys) && i < len(values); i++ {
				obj[keys[i]] = []any{values[i], n, i%2 == 0}
			}

			first, err := Marshal(obj)
			if err != nil {
				return false
			}

			var decoded any
			dec := json.NewDecoder(bytes.NewReader(first))
			dec.UseNumber()
			if err := dec.Decode(&decoded); err != nil {
				return false
			}

			second, err := Marshal(decoded)
			if err != nil {
				return false
			}
			return bytes.Equal(first, second)
		},
		gen.SliceOf(gen.AnyString()),
		gen.SliceOf(gen.AnyString()),
		gen.Int(),
	))

	properties.TestingRun(t)
}
