// Package archive encodes and decodes the portable transcript container.
//
// An archive is a zip file with two parts: transcript.txt, a NUL-separated
// record starting with the DICTADOC marker and a version tag, and
// audio.webm, the raw audio bytes stored verbatim. The encoder always
// writes CurrentVersion; the decoder accepts every version listed in
// layouts.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/transcript"
)

const (
	Magic          = "DICTADOC"
	VersionV1      = "v1"
	VersionV2      = "v2"
	CurrentVersion = VersionV2

	TranscriptPartName = "transcript.txt"
	// AudioPartName is fixed by the format; the bytes stored under it are
	// opaque to the codec.
	AudioPartName = "audio.webm"

	fieldSeparator = "\x00"
	entryFields    = 3
)

var (
	ErrNotRecognized      = errors.New("not a recognized archive")
	ErrUnsupportedVersion = errors.New("unsupported archive version")
	ErrAudioMissing       = errors.New("audio missing")
	ErrTranscriptMissing  = errors.New("transcript missing")
	ErrMalformed          = errors.New("malformed archive")
	ErrInvalidField       = errors.New("field contains a NUL byte")
)

type Document struct {
	Title     string
	CreatedAt time.Time
	Tags      []string
	Entries   []transcript.Entry
	Audio     []byte
}

// layout describes the header fields that follow the marker and version tag.
type layout struct {
	headerFields int
	decodeHeader func(fields []string, doc *Document) error
}

var layouts = map[string]layout{
	VersionV1: {headerFields: 2, decodeHeader: decodeHeaderV1},
	VersionV2: {headerFields: 3, decodeHeader: decodeHeaderV2},
}

func Encode(doc Document) ([]byte, error) {
	text, err := encodeText(doc)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := writePart(zw, TranscriptPartName, zip.Deflate, []byte(text)); err != nil {
		return nil, err
	}
	audio := doc.Audio
	if audio == nil {
		audio = []byte{}
	}
	if err := writePart(zw, AudioPartName, zip.Store, audio); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(zw *zip.Writer, name string, method uint16, body []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func encodeText(doc Document) (string, error) {
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	tagJSON, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}

	fields := []string{
		Magic,
		CurrentVersion,
		doc.Title,
		strconv.FormatInt(doc.CreatedAt.UnixMilli(), 10),
		string(tagJSON),
	}
	for _, e := range doc.Entries {
		fields = append(fields, strconv.FormatInt(e.Timing, 10), e.Speaker, e.Content)
	}
	for i, f := range fields {
		if strings.Contains(f, fieldSeparator) {
			return "", fmt.Errorf("%w: field %d", ErrInvalidField, i)
		}
	}

	var sb strings.Builder
	for _, f := range fields {
		sb.WriteString(f)
		sb.WriteString(fieldSeparator)
	}
	return sb.String(), nil
}

func Decode(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRecognized, err)
	}

	text, ok, err := readPart(zr, TranscriptPartName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTranscriptMissing
	}
	doc, err := decodeText(string(text))
	if err != nil {
		return nil, err
	}

	audio, ok, err := readPart(zr, AudioPartName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAudioMissing
	}
	doc.Audio = audio
	return doc, nil
}

func readPart(zr *zip.Reader, name string) ([]byte, bool, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, true, fmt.Errorf("open %s: %w", name, err)
		}
		defer func() {
			_ = rc.Close()
		}()
		body, err := io.ReadAll(rc)
		if err != nil {
			return nil, true, fmt.Errorf("read %s: %w", name, err)
		}
		return body, true, nil
	}
	return nil, false, nil
}

func decodeText(text string) (*Document, error) {
	fields := strings.Split(text, fieldSeparator)
	if fields[0] != Magic {
		return nil, ErrNotRecognized
	}
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: version tag missing", ErrMalformed)
	}
	version := fields[1]
	l, ok := layouts[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}

	rest := fields[2:]
	if len(rest) < l.headerFields {
		return nil, fmt.Errorf("%w: %s header has %d of %d fields", ErrMalformed, version, len(rest), l.headerFields)
	}
	doc := &Document{}
	if err := l.decodeHeader(rest[:l.headerFields], doc); err != nil {
		return nil, err
	}

	entries, err := decodeEntries(rest[l.headerFields:])
	if err != nil {
		return nil, err
	}
	doc.Entries = entries
	return doc, nil
}

func decodeHeaderV1(fields []string, doc *Document) error {
	doc.Title = fields[0]
	createdAt, err := parseEpochMillis(fields[1])
	if err != nil {
		return err
	}
	doc.CreatedAt = createdAt
	doc.Tags = []string{}
	return nil
}

func decodeHeaderV2(fields []string, doc *Document) error {
	if err := decodeHeaderV1(fields[:2], doc); err != nil {
		return err
	}
	var tags []string
	if err := json.Unmarshal([]byte(fields[2]), &tags); err != nil {
		return fmt.Errorf("%w: tags: %v", ErrMalformed, err)
	}
	if tags == nil {
		tags = []string{}
	}
	doc.Tags = tags
	return nil
}

func parseEpochMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: created at %q", ErrMalformed, s)
	}
	return time.UnixMilli(ms), nil
}

// decodeEntries reads (timing, speaker, content) groups. Records written
// with a trailing separator leave one empty field behind; records joined
// without one do not.
func decodeEntries(fields []string) ([]transcript.Entry, error) {
	if len(fields)%entryFields == 1 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	if len(fields)%entryFields != 0 {
		return nil, fmt.Errorf("%w: %d trailing entry fields", ErrMalformed, len(fields)%entryFields)
	}
	entries := make([]transcript.Entry, 0, len(fields)/entryFields)
	for i := 0; i < len(fields); i += entryFields {
		timing, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d timing %q", ErrMalformed, i/entryFields, fields[i])
		}
		entries = append(entries, transcript.Entry{
			Timing:  timing,
			Speaker: fields[i+1],
			Content: fields[i+2],
		})
	}
	return entries, nil
}
