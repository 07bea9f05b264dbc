package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// DecodeBatch reads a file batch given either as a JSON array or as an
// object with a "files" array. A missing status means modified.
func DecodeBatch(r io.Reader) ([]FileChange, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading batch: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, &ValidationError{Field: "files", Message: "empty input"}
	}

	var files []FileChange
	if data[0] == '[' {
		err = json.Unmarshal(data, &files)
	} else {
		var wrapped struct {
			Files []FileChange `json:"files"`
		}
		err = json.Unmarshal(data, &wrapped)
		files = wrapped.Files
	}
	if err != nil {
		return nil, &ValidationError{Field: "files", Message: err.Error()}
	}

	for i := range files {
		if files[i].Status == "" {
			files[i].Status = StatusModified
		}
	}
	return files, nil
}

// ParseUnifiedDiff turns a multi-file unified diff into a batch. The scanned
// text of each file is its added and context lines, so line numbers refer
// to positions within the diff hunks rather than the full file.
func ParseUnifiedDiff(data []byte) ([]FileChange, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(bytes.NewReader(data)).ReadAllFiles()
	if err != nil {
		return nil, &ValidationError{Field: "diff", Message: err.Error()}
	}

	files := make([]FileChange, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		fc := FileChange{
			Filename: diffPath(fd.NewName),
			Status:   StatusModified,
		}
		switch {
		case fd.NewName == "/dev/null":
			fc.Filename = diffPath(fd.OrigName)
			fc.Status = StatusRemoved
		case fd.OrigName == "/dev/null":
			fc.Status = StatusAdded
		case diffPath(fd.OrigName) != fc.Filename:
			fc.Status = StatusRenamed
		}

		var text strings.Builder
		var patch bytes.Buffer
		for _, h := range fd.Hunks {
			hunk, err := diff.PrintHunks([]*diff.Hunk{h})
			if err == nil {
				patch.Write(hunk)
			}
			for _, line := range strings.Split(strings.TrimSuffix(string(h.Body), "\n"), "\n") {
				if line == "" {
					text.WriteString("\n")
					continue
				}
				switch line[0] {
				case '+':
					fc.Additions++
					text.WriteString(line[1:])
					text.WriteString("\n")
				case '-':
					fc.Deletions++
				case ' ':
					text.WriteString(line[1:])
					text.WriteString("\n")
				}
			}
		}
		fc.Patch = patch.String()
		fc.Content = text.String()
		files = append(files, fc)
	}
	return files, nil
}

func diffPath(name string) string {
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}

// ReadFiles loads files from disk as added files with full content.
func ReadFiles(paths []string) ([]FileChange, error) {
	files := make([]FileChange, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		content := string(data)
		additions := 0
		if content != "" {
			additions = strings.Count(strings.TrimSuffix(content, "\n"), "\n") + 1
		}
		files = append(files, FileChange{
			Filename:  p,
			Status:    StatusAdded,
			Additions: additions,
			Content:   content,
		})
	}
	return files, nil
}
