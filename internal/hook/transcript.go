package hook

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
)

const maxTranscriptLine = 16 << 20

// ReadTranscript loads a JSONL chat transcript. Each valid line becomes one
// chat entry, kept verbatim; lines that are not JSON are skipped. A missing
// or unreadable file yields nil.
func ReadTranscript(path string) []json.RawMessage {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	chat := []json.RawMessage{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), maxTranscriptLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		chat = append(chat, json.RawMessage(bytes.Clone(line)))
	}
	if err := scanner.Err(); err != nil {
		slog.Debug("transcript read stopped early", "path", path, "error", err)
	}
	return chat
}
