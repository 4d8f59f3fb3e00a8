package anthropic

// Prompt cache lifetimes.
const (
	CacheTTLShort = "5m"
	CacheTTLHour  = "1h"
)

// CachedSystem builds system blocks from sections and places a single cache
// breakpoint on the last one, so the whole prefix is cached together. Empty
// sections are skipped.
func CachedSystem(ttl string, sections ...string) []SystemBlock {
	blocks := make([]SystemBlock, 0, len(sections))
	for _, s := range sections {
		if s != "" {
			blocks = append(blocks, SystemBlock{Text: s})
		}
	}
	if len(blocks) > 0 {
		blocks[len(blocks)-1].CacheControl = &CacheControl{TTL: ttl}
	}
	return blocks
}
