package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// excludedArgKeys never participate in the semantic hash: user_id is already
// part of the key's own prefix segment and force_refresh is a bypass flag.
var excludedArgKeys = map[string]bool{
	"user_id":       true,
	"force_refresh": true,
}

// BuildKey constructs "<tool_name>:<user_id>:<hash>" where hash is a stable
// hash of args' semantic fields only. Key ordering of args never affects the
// result; a nil args map and an empty map hash identically.
func BuildKey(toolName, userID string, args map[string]any) string {
	return toolName + ":" + userID + ":" + hashArgs(args)
}

func hashArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		if !excludedArgKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	normalized := make(map[string]any, len(keys))
	for _, k := range keys {
		normalized[k] = args[k]
	}
	// json.Marshal on a map always emits keys in sorted order, so two maps
	// with the same semantic content hash identically regardless of the
	// order they were built in.
	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}
