package batch

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrNoPrompts = errors.New("no prompts found in file")

type Item struct {
	Index  int
	Prompt string
}

type jsonItem struct {
	Prompt string `json:"prompt"`
}

// ParseFile reads prompts from a .txt file (one per line, # comments) or a
// .json array of {"prompt": "..."} objects.
func ParseFile(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return ParseJSON(file)
	case ".txt", "":
		return ParseText(file)
	default:
		return nil, fmt.Errorf("unsupported file format %q: use .txt or .json", ext)
	}
}

func ParseText(r io.Reader) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, Item{Index: len(items) + 1, Prompt: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoPrompts
	}
	return items, nil
}

// ParseJSON accepts an array whose elements are either prompt strings or
// {"prompt": "..."} objects.
func ParseJSON(r io.Reader) ([]Item, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNoPrompts
	}

	items := make([]Item, 0, len(raw))
	for i, msg := range raw {
		prompt, err := decodePrompt(msg)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		if prompt == "" {
			return nil, fmt.Errorf("item %d has empty prompt", i+1)
		}
		items = append(items, Item{Index: i + 1, Prompt: prompt})
	}
	return items, nil
}

func decodePrompt(msg json.RawMessage) (string, error) {
	var text string
	if err := json.Unmarshal(msg, &text); err == nil {
		return strings.TrimSpace(text), nil
	}
	var obj jsonItem
	if err := json.Unmarshal(msg, &obj); err != nil {
		return "", errors.New("expected a string or an object with a prompt field")
	}
	return strings.TrimSpace(obj.Prompt), nil
}
