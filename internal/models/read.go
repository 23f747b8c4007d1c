package models

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// IsCompressed reports whether path names a zstd-compressed model.
func IsCompressed(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".zst")
}

// ReadModel loads a model file into memory, decompressing `.zst` files.
func ReadModel(path string) ([]byte, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	if !IsCompressed(path) {
		return io.ReadAll(fh)
	}
	dec, err := zstd.NewReader(fh)
	if err != nil {
		return nil, fmt.Errorf("models: open zstd stream %s: %w", path, err)
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("models: decompress %s: %w", path, err)
	}
	return data, nil
}

// CompressModel writes a zstd-compressed copy of src to dst.
func CompressModel(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		return err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
