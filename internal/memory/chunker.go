package memory

import "strings"

// TextChunk is one piece of a chunk_text split, with its source heading (if
// any) and byte offsets into the original text.
type TextChunk struct {
	Content     string
	Heading     string
	HasHeading  bool
	StartOffset int
	EndOffset   int
}

const (
	defaultChunkSize = 512
	defaultOverlap   = 50
)

// ChunkText splits text into chunks of at most maxChunkSize bytes, preferring
// paragraph boundaries, then sentence boundaries, then word-packed chunks for
// any paragraph or sentence still too large. Each chunk carries the nearest
// preceding markdown heading (a line starting with "#"), prefixed onto its
// content. Overlap trims back the running offset so neighboring chunks share
// a small amount of context; it does not duplicate content.
func ChunkText(text string, maxChunkSize, overlap int) []TextChunk {
	if maxChunkSize <= 0 {
		maxChunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	var chunks []TextChunk
	var heading string
	hasHeading := false
	offset := 0

	emit := func(content string) {
		c := TextChunk{Content: content, Heading: heading, HasHeading: hasHeading}
		if hasHeading {
			c.Content = heading + "\n" + content
		}
		c.StartOffset = offset
		c.EndOffset = offset + len(content)
		chunks = append(chunks, c)
		if len(content) > overlap {
			offset += len(content) - overlap
		} else {
			offset += len(content)
		}
	}

	for _, paragraph := range splitParagraphs(text) {
		if strings.HasPrefix(paragraph, "#") {
			heading = paragraph
			hasHeading = true
		}

		if len(paragraph) <= maxChunkSize {
			emit(paragraph)
			continue
		}

		var current string
		for _, sentence := range splitSentences(paragraph) {
			if len(sentence) > maxChunkSize {
				for _, wordChunk := range splitWords(sentence, maxChunkSize) {
					if current != "" {
						emit(current)
						current = ""
					}
					emit(wordChunk)
				}
				continue
			}

			if len(current)+len(sentence)+1 > maxChunkSize && current != "" {
				emit(current)
				current = ""
			}
			if current != "" {
				current += " "
			}
			current += sentence
		}
		if current != "" {
			emit(current)
		}
	}

	if len(chunks) == 0 {
		chunks = append(chunks, TextChunk{Content: text, StartOffset: 0, EndOffset: len(text)})
	}
	return chunks
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	var current strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
				paragraphs = append(paragraphs, trimmed)
				current.Reset()
			}
			continue
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
		paragraphs = append(paragraphs, trimmed)
	}
	return paragraphs
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, ch := range text {
		current.WriteRune(ch)
		if ch == '.' || ch == '!' || ch == '?' {
			if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
				sentences = append(sentences, trimmed)
			}
			current.Reset()
		}
	}
	if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
		sentences = append(sentences, trimmed)
	}
	return sentences
}

func splitWords(text string, maxSize int) []string {
	var chunks []string
	var current string
	for _, word := range strings.Fields(text) {
		if len(current)+len(word)+1 > maxSize && current != "" {
			chunks = append(chunks, current)
			current = ""
		}
		if current != "" {
			current += " "
		}
		current += word
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}
