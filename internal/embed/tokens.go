package embed

import (
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts for batch budgeting. Counts do not have
// to match the embedding model exactly; they only keep request payloads under
// the provider's limit.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// Count returns the token count of text using the cl100k_base encoding, or a
// bytes/4 estimate when the encoding cannot be loaded.
func (c *TokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Printf("token counter: falling back to byte estimate: %v", err)
			return
		}
		c.enc = enc
	})
	if c.enc == nil {
		return len(text)/4 + 1
	}
	return len(c.enc.Encode(text, nil, nil))
}
