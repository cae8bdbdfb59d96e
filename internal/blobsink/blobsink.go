// Package blobsink streams a blob download's response body to a file on
// disk, optionally verifying its digest and enforcing a size cap while
// it streams.
package blobsink

import (
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/oceanhq/dregistry/internal/errs"
)

const filePerm = 0o644

// ValidatePath rejects a repository path containing whitespace, per the
// pre-flight check the client runs before issuing any HTTP request.
func ValidatePath(path string) error {
	if strings.ContainsAny(path, " \t\n\r") {
		return fmt.Errorf("%w: %q contains whitespace", errs.ErrInvalidPath, path)
	}
	return nil
}

// Write streams body to filePath, creating its parent directory if
// necessary, optionally verifying the result against wantDigest and
// enforcing maxSize while it streams. It returns the number of bytes
// written.
//
// On any failure the partially written file at filePath is left in
// place; this is documented residue the caller may clean up.
func Write(body io.Reader, filePath string, wantDigest string, maxSize int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return 0, fmt.Errorf("%w: create parent directory: %v", errs.ErrIO, err)
	}

	f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", errs.ErrIO, filePath, err)
	}
	defer f.Close()

	reader := body
	if maxSize > 0 {
		reader = io.LimitReader(body, maxSize+1)
	}

	var verifier digest.Digest
	var algo digest.Algorithm
	var hasher hash.Hash
	if wantDigest != "" {
		parsed, err := digest.Parse(wantDigest)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid digest %q: %v", errs.ErrDigestMismatch, wantDigest, err)
		}
		verifier = parsed
		algo = parsed.Algorithm()
		hasher = algo.Hash()
	}

	var n int64
	if hasher != nil {
		n, err = io.Copy(io.MultiWriter(f, hasher), reader)
	} else {
		n, err = io.Copy(f, reader)
	}
	if err != nil {
		return n, fmt.Errorf("%w: write %s: %v", errs.ErrIO, filePath, err)
	}

	if maxSize > 0 && n > maxSize {
		return n, fmt.Errorf("%w: wrote %d bytes, limit is %d", errs.ErrBlobTooLarge, n, maxSize)
	}

	if hasher != nil {
		computed := digest.NewDigest(algo, hasher)
		if computed != verifier {
			return n, fmt.Errorf("%w: expected %s, computed %s", errs.ErrDigestMismatch, verifier, computed)
		}
	}

	return n, nil
}
