package sensu

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	noSlice        = "none"
	definitionMode = 0o644
)

// DefinitionFilename names the definition file for a check. Registration and
// deregistration both derive paths through it, so a later deployment deletes
// exactly the file an earlier one wrote.
func DefinitionFilename(serviceID, checkID, slice string) string {
	if slice == "" {
		slice = noSlice
	}
	return fmt.Sprintf("%s-%s-%s.json", serviceID, checkID, slice)
}

// DefinitionPath joins the check directory with the definition filename.
func DefinitionPath(checkPath, serviceID, checkID, slice string) string {
	return filepath.Join(checkPath, DefinitionFilename(serviceID, checkID, slice))
}

// EncodeDefinition serialises a definition with sorted keys and 4-space indentation.
func EncodeDefinition(def Definition) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeDefinition, err)
	}
	return buf.Bytes(), nil
}

// WriteDefinition atomically writes the definition to path and returns the
// SHA-256 of the written bytes.
func WriteDefinition(path string, def Definition) (string, error) {
	body, err := EncodeDefinition(def)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, ".sensu-check-*.json")
	if err != nil {
		return "", err
	}

	cleanup := func() {
		_ = os.Remove(tempFile.Name())
	}

	if _, err := tempFile.Write(body); err != nil {
		_ = tempFile.Close()
		cleanup()
		return "", err
	}
	if err := tempFile.Chmod(definitionMode); err != nil {
		_ = tempFile.Close()
		cleanup()
		return "", err
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		cleanup()
		return "", err
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return "", err
	}

	if err := os.Rename(tempFile.Name(), path); err != nil {
		cleanup()
		return "", err
	}

	return fingerprint(body), nil
}

// ReadDefinition loads a definition file written by WriteDefinition.
func ReadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, err
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return def, nil
}

// DeleteOutcome reports what DeleteDefinition did.
type DeleteOutcome int

const (
	DeleteFailed DeleteOutcome = iota
	DeleteRemoved
	DeleteNotFound
)

func (o DeleteOutcome) String() string {
	switch o {
	case DeleteRemoved:
		return "removed"
	case DeleteNotFound:
		return "not_found"
	default:
		return "failed"
	}
}

// DeleteDefinition removes a definition file if present.
func DeleteDefinition(path string) (DeleteOutcome, error) {
	err := os.Remove(path)
	switch {
	case err == nil:
		return DeleteRemoved, nil
	case errors.Is(err, fs.ErrNotExist):
		return DeleteNotFound, nil
	default:
		return DeleteFailed, err
	}
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
