package refserver

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/vinhnx/openresponses/internal/protocol"
)

// tokenCounter counts tokens with tiktoken so the reference server's
// usage numbers behave like a real provider's.
type tokenCounter struct {
	once  sync.Once
	codec tokenizer.Codec
}

func (c *tokenCounter) count(text string) int {
	c.once.Do(func() {
		// O200kBase covers current models; falls back to a word
		// count below if the vocabulary fails to load.
		c.codec, _ = tokenizer.Get(tokenizer.O200kBase)
	})
	if c.codec == nil {
		return (len(text) + 3) / 4
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(ids)
}

func (c *tokenCounter) countRequest(req *protocol.Request) int {
	n := c.count(req.Instructions)
	if req.Input.Text != "" {
		n += c.count(req.Input.Text)
	}
	for _, item := range req.Input.Items {
		n += c.count(item.Output) + c.count(item.Arguments) + c.count(item.Name)
		for _, part := range item.Content {
			n += c.count(part.Text)
		}
	}
	for _, tool := range req.Tools {
		n += c.count(tool.Name) + c.count(tool.Description) + c.count(string(tool.Parameters))
	}
	if n == 0 {
		n = 1
	}
	return n
}
