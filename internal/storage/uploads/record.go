package uploads

import (
	"encoding/json"
	"path"
	"strings"
	"time"
	"unicode"
)

// maxNameLen bounds the stored base name in bytes.
const maxNameLen = 200

// Upload is one file part handed over by the request handler.
type Upload struct {
	Field       string
	FileName    string
	ContentType string
	Content     []byte
	ClientAddr  string
	RequestID   string
}

// Record describes a stored upload.
type Record struct {
	ID          string    `json:"id"`
	Field       string    `json:"field"`
	FileName    string    `json:"file_name"`
	StoredName  string    `json:"stored_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Digest      string    `json:"digest"`
	ClientAddr  string    `json:"client_addr,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Submission is one accepted form or JSON submission.
type Submission struct {
	Fields map[string][]string
	JSON   json.RawMessage

	// Uploads lists the ids of the files stored with the submission.
	Uploads []string

	ClientAddr string
	RequestID  string
}

// SubmissionRecord describes a stored submission.
type SubmissionRecord struct {
	ID         string              `json:"id"`
	Fields     map[string][]string `json:"fields,omitempty"`
	JSON       json.RawMessage     `json:"json,omitempty"`
	Uploads    []string            `json:"uploads,omitempty"`
	ClientAddr string              `json:"client_addr,omitempty"`
	RequestID  string              `json:"request_id,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

func decode[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// BaseName reduces a client supplied file name to a safe base name.
// Directory components of either separator are dropped, control
// characters removed and the result bounded in length. Names that reduce
// to nothing become "upload".
func BaseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '/' || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	name = strings.TrimLeft(name, ".")

	if len(name) > maxNameLen {
		ext := path.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		cut := maxNameLen - len(ext)
		for cut > 0 && !utf8Start(name[cut]) {
			cut--
		}
		name = name[:cut] + ext
	}
	if name == "" {
		return "upload"
	}
	return name
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
