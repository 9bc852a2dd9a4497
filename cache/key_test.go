package cache

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestBuildKeyShape(t *testing.T) {
	key := BuildKey("oee_query", "user-1", map[string]any{"area": "machining"})
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		t.Fatalf("key %q should have 3 segments", key)
	}
	if parts[0] != "oee_query" || parts[1] != "user-1" {
		t.Errorf("key %q has wrong tool/user segments", key)
	}
	if len(parts[2]) != 16 {
		t.Errorf("hash segment %q should be 16 hex chars", parts[2])
	}
}

func TestBuildKeyExcludesSentinels(t *testing.T) {
	base := BuildKey("t", "u", map[string]any{"area": "machining"})
	withSentinels := BuildKey("t", "u", map[string]any{
		"area":          "machining",
		"user_id":       "someone-else",
		"force_refresh": true,
	})
	if base != withSentinels {
		t.Errorf("user_id/force_refresh must not affect the key: %q != %q", base, withSentinels)
	}
}

func TestBuildKeyNilAndEmptyArgsHashIdentically(t *testing.T) {
	if BuildKey("t", "u", nil) != BuildKey("t", "u", map[string]any{}) {
		t.Error("nil and empty args must hash identically")
	}
}

// Keys depend only on semantic args, never on map construction order or the
// excluded sentinel fields.
func TestBuildKeySemanticEqualityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	argGen := gen.MapOf(gen.Identifier(), gen.AnyString())

	properties.Property("sentinels never change the key", prop.ForAll(
		func(args map[string]string, userID, refreshUser string) bool {
			plain := make(map[string]any, len(args))
			decorated := make(map[string]any, len(args)+2)
			for k, v := range args {
				if excludedArgKeys[k] {
					continue
				}
				plain[k] = v
				decorated[k] = v
			}
			decorated["user_id"] = refreshUser
			decorated["force_refresh"] = true
			return BuildKey("tool", userID, plain) == BuildKey("tool", userID, decorated)
		},
		argGen, gen.Identifier(), gen.Identifier(),
	))

	properties.Property("equal semantic args always collide", prop.ForAll(
		func(args map[string]string) bool {
			a := make(map[string]any, len(args))
			b := make(map[string]any, len(args))
			for k, v := range args {
				a[k] = v
			}
			// Populate b in a different (reverse-sorted) insertion order.
			keys := make([]string, 0, len(args))
			for k := range args {
				keys = append(keys, k)
			}
			for i := len(keys) - 1; i >= 0; i-- {
				b[keys[i]] = args[keys[i]]
			}
			return BuildKey("tool", "u", a) == BuildKey("tool", "u", b)
		},
		argGen,
	))

	properties.TestingRun(t)
}
