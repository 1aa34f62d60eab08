package checkpoint

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"reptation/internal/reptile"
)

// WriteFile writes reptiles to path. The data goes to a temporary file in
// the same directory which is synced and renamed over path, so readers only
// ever see a complete checkpoint.
func WriteFile(path string, reptiles []*reptile.Reptile) error {
	var buf bytes.Buffer
	if err := Encode(&buf, reptiles); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return writeAtomic(path, buf.Bytes())
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(name, path); err != nil {
		cleanup()
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

func ReadFile(path string) ([]*reptile.Reptile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reptiles, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	return reptiles, nil
}

// Marshal encodes reptiles into memory, for storage backends that keep the
// checkpoint as a blob.
func Marshal(reptiles []*reptile.Reptile) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, reptiles); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Unmarshal(data []byte) ([]*reptile.Reptile, error) {
	return Decode(bytes.NewReader(data))
}
