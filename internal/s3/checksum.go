package s3

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// MetaBLAKE3 is the user-metadata key holding the hex BLAKE3 digest of an archive.
const MetaBLAKE3 = "blake3"

type Digest struct {
	MD5    []byte
	BLAKE3 []byte
	Size   int64
}

// Sum reads r to EOF and returns its MD5 and BLAKE3 digests.
func Sum(r io.Reader) (Digest, error) {
	m := md5.New()
	b := blake3.New()
	n, err := io.Copy(io.MultiWriter(m, b), r)
	if err != nil {
		return Digest{}, err
	}
	return Digest{MD5: m.Sum(nil), BLAKE3: b.Sum(nil), Size: n}, nil
}

func SumFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()
	d, err := Sum(f)
	if err != nil {
		return Digest{}, fmt.Errorf("checksum %s: %w", path, err)
	}
	return d, nil
}

// ContentMD5 is the base64 form expected by the Content-MD5 header.
func (d Digest) ContentMD5() string {
	return base64.StdEncoding.EncodeToString(d.MD5)
}

func (d Digest) BLAKE3Hex() string {
	return hex.EncodeToString(d.BLAKE3)
}

func contentMD5(p []byte) string {
	sum := md5.Sum(p)
	return base64.StdEncoding.EncodeToString(sum[:])
}
