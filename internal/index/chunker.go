package index

import "strings"

// ChunkText splits text into overlapping word windows of chunkSize words,
// advancing by chunkSize-overlap words. Windows whose trimmed length falls
// below minChars are dropped as near-empty fragments. Deterministic: the same
// input always yields the same sequence.
func ChunkText(text string, chunkSize, overlap, minChars int) []string {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil
	}

	words := strings.Fields(text)
	step := chunkSize - overlap

	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if len(strings.TrimSpace(chunk)) > minChars {
			chunks = append(chunks, chunk)
		}
		if end == len(words) {
			break
		}
	}

	return chunks
}
