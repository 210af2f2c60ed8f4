package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/rendis/worldscript/internal/store"
)

// readContent validates an action content file and returns it with the
// SHA-256 of the bytes read, so operators can tell which revision is live.
func readContent(path string) (*store.Content, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open content: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	content, err := store.LoadContent(io.TeeReader(f, h))
	if err != nil {
		return nil, "", err
	}
	return content, hex.EncodeToString(h.Sum(nil)), nil
}
