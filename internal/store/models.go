package store

type Setting struct {
	Key   string
	Value string
}

// Setting keys.
const (
	SettingGrouping = "grouping"
	SettingCacheTTL = "cache_ttl" // seconds
)
