// Package ingestion splits documents into chunks and indexes them into the
// knowledge base.
package ingestion

import (
	"strconv"
	"strings"
	"unicode"
)

// Chunk represents a piece of chunked content
type Chunk struct {
	Content  string
	Index    int
	Metadata map[string]string
}

// ChunkerConfig sets chunk sizes in words.
type ChunkerConfig struct {
	TargetWords  int // Flush once a chunk reaches this many words
	MaxWords     int // Never exceed this many words
	OverlapWords int // Trailing words carried into the next chunk
}

// Chunker packs sentences into chunks of roughly TargetWords words.
type Chunker struct {
	config ChunkerConfig
}

// NewChunker creates a Chunker, applying defaults for unset sizes.
func NewChunker(config ChunkerConfig) *Chunker {
	if config.TargetWords <= 0 {
		config.TargetWords = 256
	}
	if config.MaxWords < config.TargetWords {
		config.MaxWords = config.TargetWords * 2
	}
	if config.OverlapWords < 0 {
		config.OverlapWords = 0
	}
	if config.OverlapWords >= config.TargetWords {
		config.OverlapWords = config.TargetWords / 4
	}
	return &Chunker{config: config}
}

// Chunk groups sentences until the target size is reached. Sentences longer
// than MaxWords are split by words.
func (c *Chunker) Chunk(content string) []Chunk {
	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []Chunk
	var current []string
	currentWords := 0
	fresh := 0 // sentences in current that are not overlap

	flush := func() {
		chunks = append(chunks, newChunk(current, len(chunks)))
		current, currentWords = c.overlap(current)
		fresh = 0
	}

	for _, sentence := range sentences {
		words := len(strings.Fields(sentence))

		if words > c.config.MaxWords {
			if fresh > 0 {
				chunks = append(chunks, newChunk(current, len(chunks)))
			}
			current, currentWords, fresh = nil, 0, 0
			chunks = append(chunks, c.splitLongSentence(sentence, len(chunks))...)
			continue
		}

		if currentWords+words > c.config.MaxWords {
			if fresh > 0 {
				flush()
			}
			if currentWords+words > c.config.MaxWords {
				current, currentWords = nil, 0
			}
		}

		current = append(current, sentence)
		currentWords += words
		fresh++

		if currentWords >= c.config.TargetWords {
			flush()
		}
	}

	if fresh > 0 {
		chunks = append(chunks, newChunk(current, len(chunks)))
	}

	return chunks
}

func newChunk(sentences []string, index int) Chunk {
	content := strings.TrimSpace(strings.Join(sentences, " "))
	return Chunk{
		Content: content,
		Index:   index,
		Metadata: map[string]string{
			"sentence_count": strconv.Itoa(len(sentences)),
			"word_count":     strconv.Itoa(len(strings.Fields(content))),
		},
	}
}

// overlap keeps trailing sentences up to OverlapWords words.
func (c *Chunker) overlap(sentences []string) ([]string, int) {
	if c.config.OverlapWords <= 0 || len(sentences) == 0 {
		return nil, 0
	}

	var kept []string
	words := 0
	for i := len(sentences) - 1; i > 0 && words < c.config.OverlapWords; i-- {
		n := len(strings.Fields(sentences[i]))
		if words+n > c.config.OverlapWords {
			break
		}
		kept = append([]string{sentences[i]}, kept...)
		words += n
	}
	return kept, words
}

func (c *Chunker) splitLongSentence(sentence string, startIndex int) []Chunk {
	words := strings.Fields(sentence)
	step := c.config.TargetWords - c.config.OverlapWords

	var chunks []Chunk
	for i := 0; i < len(words); i += step {
		end := min(i+c.config.TargetWords, len(words))
		chunk := newChunk(words[i:end], startIndex+len(chunks))
		chunk.Metadata["sentence_count"] = "1"
		chunk.Metadata["split"] = "true"
		chunks = append(chunks, chunk)
		if end == len(words) {
			break
		}
	}
	return chunks
}

// splitSentences splits on . ! ? followed by whitespace or end of text,
// skipping common abbreviations.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)

		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		sentence := strings.TrimSpace(current.String())
		if sentence != "" && !isAbbreviation(sentence) {
			sentences = append(sentences, sentence)
			current.Reset()
		}
	}

	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		sentences = append(sentences, remaining)
	}
	return sentences
}

var abbreviations = []string{
	"mr.", "mrs.", "ms.", "dr.", "prof.",
	"inc.", "ltd.", "corp.", "co.",
	"etc.", "e.g.", "i.e.",
	"vs.", "approx.", "vol.",
}

func isAbbreviation(text string) bool {
	lower := strings.ToLower(text)
	for _, abbr := range abbreviations {
		if strings.HasSuffix(lower, " "+abbr) || lower == abbr {
			return true
		}
	}
	return false
}
