package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint set to a 1-hour TTL. The guessing system prompt is identical for
// every round of every session, so later calls read it from the warm cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "1h",
			},
		},
	}
}
