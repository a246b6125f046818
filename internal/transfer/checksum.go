package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"lukechampine.com/blake3"

	"github.com/nao1215/webget/internal/model"
)

// errChecksumSpec reports a malformed "algo:hex" checksum string.
var errChecksumSpec = fmt.Errorf("checksum must be \"sha256:<hex>\" or \"blake3:<hex>\"")

// newDigest returns the hash for a checksum algorithm name.
func newDigest(algo string) (hash.Hash, error) {
	switch strings.ToLower(algo) {
	case "sha256":
		return sha256.New(), nil
	case "blake3":
		return blake3.New(32, nil), nil
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", errChecksumSpec, algo)
	}
}

// verifyFileChecksum streams the file through the digest named by spec
// ("algo:hex") and compares. An empty spec verifies nothing. A
// mismatch is returned as a checksum classification carrying both
// digests.
func verifyFileChecksum(path, spec string) error {
	if spec == "" {
		return nil
	}
	algo, want, ok := strings.Cut(spec, ":")
	if !ok || want == "" {
		return model.Classify(model.ErrorKindChecksumMismatch, errChecksumSpec)
	}
	h, err := newDigest(algo)
	if err != nil {
		return model.Classify(model.ErrorKindChecksumMismatch, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return model.ClassifyFilesystem("open", err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return model.ClassifyFilesystem("read", err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, want) {
		return model.Classify(model.ErrorKindChecksumMismatch,
			fmt.Errorf("%s digest %s does not match expected %s", algo, got, strings.ToLower(want)))
	}
	return nil
}
