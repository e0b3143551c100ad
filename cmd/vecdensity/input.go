package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/viant/vecdensity/vector"
)

const maxLineSize = 64 << 20

type documentLine struct {
	ID        string          `json:"id"`
	Content   string          `json:"content"`
	Meta      json.RawMessage `json:"meta"`
	Embedding []float32       `json:"embedding"`
}

func parseDocument(line []byte) (vector.Document, error) {
	var d documentLine
	if err := json.Unmarshal(line, &d); err != nil {
		return vector.Document{}, err
	}
	if d.ID == "" {
		return vector.Document{}, fmt.Errorf("document has no id")
	}
	if len(d.Embedding) == 0 {
		return vector.Document{}, fmt.Errorf("document %q has no embedding", d.ID)
	}
	meta := string(d.Meta)
	if meta == "" || meta == "null" {
		meta = "{}"
	}
	return vector.Document{ID: d.ID, Content: d.Content, Metadata: meta, Embedding: d.Embedding}, nil
}

// parseEmbedding accepts a bare array or an object with an embedding field.
func parseEmbedding(line []byte) ([]float32, error) {
	var vec []float32
	if strings.HasPrefix(strings.TrimSpace(string(line)), "[") {
		if err := json.Unmarshal(line, &vec); err != nil {
			return nil, err
		}
	} else {
		var d documentLine
		if err := json.Unmarshal(line, &d); err != nil {
			return nil, err
		}
		vec = d.Embedding
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	return vec, nil
}

func parseDistances(line []byte) ([]float64, error) {
	var row []float64
	if err := json.Unmarshal(line, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// readInput parses every non-blank line of path, or stdin for "-".
func readInput[T any](path string, parse func([]byte) (T, error)) ([]T, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return parseLines(r, parse)
}

func parseLines[T any](r io.Reader, parse func([]byte) (T, error)) ([]T, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var out []T
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		v, err := parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
