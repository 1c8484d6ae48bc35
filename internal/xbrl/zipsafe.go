package xbrl

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/charmap"
)

const (
	// maxArchiveBytes caps the total uncompressed size of an archive.
	maxArchiveBytes = 50 << 20

	// maxCompressionRatio caps uncompressed:compressed. Exactly 100:1
	// still passes.
	maxCompressionRatio = 100
)

// ExtractReport opens a downloaded archive, enforces the safety limits
// and returns the decoded text of the first inline-XBRL document. When
// the top level holds only another archive, it recurses one level.
func ExtractReport(data []byte) (string, error) {
	return extractReport(data, true)
}

func extractReport(data []byte, allowNested bool) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}

	var totalComp, totalUncomp uint64
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "__MACOSX") {
			continue
		}
		if err := checkEntryName(f.Name); err != nil {
			return "", err
		}
		totalComp += f.CompressedSize64
		totalUncomp += f.UncompressedSize64
	}
	if err := checkBudgets(totalComp, totalUncomp); err != nil {
		return "", err
	}

	var nested *zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "__MACOSX") || f.FileInfo().IsDir() {
			continue
		}
		lower := strings.ToLower(f.Name)
		switch {
		case strings.HasSuffix(lower, ".xhtml") || strings.HasSuffix(lower, ".html"):
			raw, err := readEntry(f)
			if err != nil {
				return "", err
			}
			return decodeReport(f.Name, raw), nil
		case nested == nil && strings.HasSuffix(lower, ".zip"):
			nested = f
		}
	}

	if nested != nil && allowNested {
		raw, err := readEntry(nested)
		if err != nil {
			return "", err
		}
		return extractReport(raw, false)
	}
	return "", errors.New("no report document in archive")
}

// checkBudgets enforces the declared-size limits before anything is
// inflated.
func checkBudgets(totalComp, totalUncomp uint64) error {
	if totalUncomp > maxArchiveBytes {
		return fmt.Errorf("archive expands to %d bytes, limit is %d", totalUncomp, maxArchiveBytes)
	}
	if totalUncomp > totalComp*maxCompressionRatio {
		return fmt.Errorf("compression ratio above %d:1", maxCompressionRatio)
	}
	return nil
}

// checkEntryName rejects absolute paths, traversal sequences and
// characters that are unsafe on common filesystems.
func checkEntryName(name string) error {
	if name == "" {
		return errors.New("empty archive entry name")
	}
	if name[0] == '/' || name[0] == '\\' {
		return fmt.Errorf("absolute entry name %q", name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("traversal in entry name %q", name)
	}
	if strings.ContainsAny(name, `:*?"<>|`) {
		return fmt.Errorf("unsafe character in entry name %q", name)
	}
	return nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	// The declared sizes passed validation; cap the actual read too.
	data, err := io.ReadAll(io.LimitReader(rc, maxArchiveBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if len(data) > maxArchiveBytes {
		return nil, fmt.Errorf("entry %s exceeds the size limit", f.Name)
	}
	return data, nil
}

func decodeReport(name string, raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	log.Warn().Str("entry", name).Msg("Report is not valid UTF-8, decoding as latin-1")
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}
