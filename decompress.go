// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"io"
	"io/fs"
	"regexp"
	"runtime"
	"strings"
	"unicode/utf8"
)

// decompressReader is an [EntryReader] for a compressed stream that does not
// contain a container. It yields a single file entry with the decompressed content.
type decompressReader struct {
	src     streamContent
	name    string
	mode    fs.FileMode
	started bool
}

// newDecompressReader returns a reader with one file entry. The name of the entry
// is derived from inputName by removing the file extension of the compression.
func newDecompressReader(src io.Reader, inputName string, fileExt string, cfg *Config) *decompressReader {
	name := determineOutputName(inputName, "."+fileExt)
	cfg.Logger().Debug("determined output name", "name", name)
	return &decompressReader{
		src:  streamContent{r: src},
		name: name,
		mode: cfg.CustomDecompressFileMode() & modeBits,
	}
}

// Format returns an empty name, the compression is named by the wrapping reader.
func (d *decompressReader) Format() string {
	return ""
}

// Next returns the single file entry, then io.EOF.
func (d *decompressReader) Next() (Entry, error) {
	if d.started {
		d.src.reset(nil)
		return Entry{}, io.EOF
	}
	d.started = true
	return Entry{
		Name: d.name,
		Type: TypeFile,
		Size: -1,
		Mode: d.mode,
	}, nil
}

// Open returns the decompressed content.
func (d *decompressReader) Open() (io.ReadCloser, error) {
	return d.src.open()
}

// Close is a no-op, the decompressor is closed by the wrapping reader.
func (d *decompressReader) Close() error {
	return nil
}

// init prepares the filename restriction regex
func init() {
	namingRestrictions = []nameRestriction{
		{"empty name", regexp.MustCompile(`^$`)},
		{"current directory", regexp.MustCompile(`^\.$`)},
		{"parent directory", regexp.MustCompile(`^\.\.$`)},
		{"maximum length 255", regexp.MustCompile(`^.{256,}$`)},
		{"limit to first 255 ascii characters", regexp.MustCompile(`[^\x00-\xFF]`)},
		{"exclude line break, feed and tab", regexp.MustCompile(`[\x0a\x0d\x09]`)},
	}

	if runtime.GOOS != "windows" {

		// regex with invalid unix filesystem characters, allowing unicode (128-255), excluding following character: / null byte backslash
		namingRestrictions = append(namingRestrictions,
			nameRestriction{"invalid character in filename (unix): null byte, slash, backslash", regexp.MustCompile(`[\x00/\\]`)},
		)

	}

	// check for invalid characters
	if runtime.GOOS == "windows" {

		// regex with invalid windows filesystem characters, allowing unicode (128-255), excluding control characters, and the following characters: <>:"/\\|?*e
		// https://docs.microsoft.com/en-us/windows/win32/fileio/naming-a-file
		namingRestrictions = append(namingRestrictions, nameRestriction{
			"invalid characters (windows)", regexp.MustCompile(`[\x00-\x1f<>:"/\\|?*]`),
		})

		// known reserved names on windows, "(?i)" is case-insensitive
		namingRestrictions = append(namingRestrictions,
			nameRestriction{"reserved name", regexp.MustCompile(`^(?i)CON$`)},
			nameRestriction{"reserved name", regexp.MustCompile(`^(?i)PRN$`)},
			nameRestriction{"reserved name", regexp.MustCompile(`^(?i)AUX$`)},
			nameRestriction{"reserved name", regexp.MustCompile(`^(?i)NUL$`)},
			nameRestriction{"reserved name", regexp.MustCompile(`^(?i)COM[0-9]+$`)},
			nameRestriction{"reserved name", regexp.MustCompile(`^(?i)LPT[0-9]+$`)},
			nameRestriction{"reserved name", regexp.MustCompile(`^(\s|\.)+$`)})
	}

}

// nameRestriction is a struct that contains the name of the restriction and the regex to check for it
type nameRestriction struct {
	RestrictionName string
	Regex           *regexp.Regexp
}

// namingRestrictions is a list of restrictions for filenames, depending on the operating system
var namingRestrictions []nameRestriction

const (
	// defaultDecompressionName is the default name for the extracted content
	defaultDecompressionName = "goarchive-decompressed-content"

	// defaultDecompressedSuffix is the suffix for the extracted content if
	// the filename does not end with a file extension
	defaultDecompressedSuffix = "decompressed"
)

// determineOutputName determines the name of the decompressed content
func determineOutputName(inputName string, fileExt string) string {

	// is src for decompression a file?
	if len(inputName) == 0 {
		return defaultDecompressionName
	}

	// start with the input name
	newName := inputName

	// remove file extension
	if strings.HasSuffix(strings.ToLower(inputName), strings.ToLower(fileExt)) {
		newName = newName[:len(newName)-len(fileExt)]
	}

	// check if file extension has been removed, if not, add a suffix
	if newName == inputName {
		newName = fmt.Sprintf("%s.%s", inputName, defaultDecompressedSuffix)
	}

	// check newName is a valid utf8 string
	if !utf8.ValidString(newName) {
		return defaultDecompressionName
	}

	// check if the new filename without the extension is valid and does not violate
	// any restrictions for the operating system
	for _, restriction := range namingRestrictions {
		if restriction.Regex.FindStringIndex(newName) != nil {
			return defaultDecompressionName
		}
	}

	// return the new name
	return newName
}
