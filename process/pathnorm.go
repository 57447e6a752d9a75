// Package process implements FileProcessor: per-entry parent resolution,
// content hashing, known-file classification, and File/LayoutRange row
// construction (spec.md §4.5).
package process

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// sentinelByte replaces byte sequences that don't decode as UTF-8
// (spec.md §4.5 "Path stored in each File row").
const sentinelByte = '^'

// MaxParentPathLen is the cap after which path normalization raises a
// per-entry error instead of truncating (spec.md §4.5).
const MaxParentPathLen = 2048

// SanitizeUTF8 replaces every byte that isn't part of a valid UTF-8
// encoding with the sentinel '^', preserving valid runes untouched.
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			b.WriteByte(sentinelByte)
			i++
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

// collapseSlashes replaces runs of '/' with a single '/', leaving any
// other character untouched.
func collapseSlashes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSlash := false
	for _, r := range s {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizePath applies NFC unicode normalization, UTF-8 sanitization,
// and slash-collapsing, in that order. It is idempotent: normalizing
// twice equals normalizing once (spec.md §8 property 9), since each
// step is itself idempotent and none re-introduces work the prior step
// already removed.
func NormalizePath(s string) string {
	s = norm.NFC.String(SanitizeUTF8(s))
	return collapseSlashes(s)
}

// ChildParentPath builds the parent_path stored on the children of a
// directory: the directory's own parent_path concatenated with its name
// and a trailing separator (spec.md §3 invariant 5). Reports false (with
// an empty path) if the result exceeds MaxParentPathLen runes; callers must register
// that as a per-entry error and skip the entry (spec.md §4.5).
func ChildParentPath(dirParentPath, dirName string) (string, bool) {
	p := NormalizePath(dirParentPath)
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	name := NormalizePath(dirName)
	if name != "" && name != "." {
		p += name
		if !strings.HasSuffix(p, "/") {
			p += "/"
		}
	}
	p = collapseSlashes(p)
	if utf8.RuneCountInString(p) > MaxParentPathLen {
		return "", false
	}
	return p, true
}

// RootParentPath is the parent_path of a file-system's root directory.
const RootParentPath = "/"

// djb2 is "the reference mixing function" named explicitly by spec.md
// §4.5 for the non-NTFS sequence discriminator. Path-separator
// characters are ignored while mixing so that "a/b", "/a/b", and
// "a//b" hash identically (spec.md §8 property 10).
func djb2(s string) uint64 {
	var h uint64 = 5381
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '/' || c == '\\' {
			continue
		}
		h = ((h << 5) + h) + uint64(c) // h*33 + c
	}
	return h
}

// SequenceDiscriminator computes the djb2 hash of a path for use as the
// non-NTFS parent-cache discriminator (spec.md §4.5 step 2).
func SequenceDiscriminator(path string) uint64 {
	return djb2(path)
}

// indexRootAttrName is NTFS's $I30 index-root attribute, which is
// treated as anonymous rather than suffixed onto the file name
// (spec.md §4.5 "Name construction").
const indexRootAttrName = "$I30"

// AttributeFileName builds the persisted name for a (file, attribute)
// pair: "<file-name>:<attribute-name>" for a non-default attribute
// name, except NTFS's $I30 index root which is anonymous.
func AttributeFileName(fileName, attrName string) string {
	if attrName == "" || attrName == indexRootAttrName {
		return fileName
	}
	return fileName + ":" + attrName
}
