// ABOUTME: Outbound text preparation for provider message-size limits.
// ABOUTME: Strips markdown formatting and splits replies into bounded chunks.

package messaging

import "strings"

// MaxChunkLength keeps each outbound message under the provider's 1600-char
// limit with headroom for encoding overhead.
const MaxChunkLength = 1500

// Clean strips markdown formatting the completion backend tends to emit,
// since the messaging provider renders plain text.
func Clean(text string) string {
	replacer := strings.NewReplacer(
		"**", "",
		"*", "",
		"__", "",
		"_", "",
		"`", "",
		"#", "",
	)
	cleaned := replacer.Replace(text)
	for strings.Contains(cleaned, "\n\n\n") {
		cleaned = strings.ReplaceAll(cleaned, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(cleaned)
}

// Chunk splits text into parts of at most limit characters, preferring
// paragraph boundaries, then sentence boundaries, then words, so each part
// reads naturally on its own.
func Chunk(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 {
		limit = MaxChunkLength
	}
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if part := strings.TrimSpace(current.String()); part != "" {
			chunks = append(chunks, part)
		}
		current.Reset()
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if current.Len()+len(paragraph)+2 <= limit {
			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(paragraph)
			continue
		}
		flush()

		if len(paragraph) <= limit {
			current.WriteString(paragraph)
			continue
		}

		// Paragraph alone is over the limit: break on sentences.
		for _, sentence := range splitSentences(paragraph) {
			if current.Len()+len(sentence)+1 <= limit {
				if current.Len() > 0 {
					current.WriteString(" ")
				}
				current.WriteString(sentence)
				continue
			}
			flush()

			if len(sentence) <= limit {
				current.WriteString(sentence)
				continue
			}

			// Degenerate sentence longer than a whole message: break on words.
			for _, word := range strings.Fields(sentence) {
				if current.Len()+len(word)+1 > limit {
					flush()
				}
				if current.Len() > 0 {
					current.WriteString(" ")
				}
				current.WriteString(word)
			}
		}
	}
	flush()

	return chunks
}

// splitSentences breaks a paragraph on ". " boundaries, keeping the periods.
func splitSentences(paragraph string) []string {
	parts := strings.SplitAfter(paragraph, ". ")
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}
