// Package notebook reads Jupyter notebooks and flattens their code cells
// into a single script.
package notebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	CellCode     = "code"
	CellMarkdown = "markdown"
	CellRaw      = "raw"
)

// ErrInvalid marks input that is not a notebook document.
var ErrInvalid = errors.New("invalid notebook")

// Cell is one notebook cell. Index is its 0-based position in the notebook.
type Cell struct {
	Index          int
	Type           string
	Source         string
	ExecutionCount *int
	Outputs        []json.RawMessage
}

// Notebook is a parsed .ipynb document.
type Notebook struct {
	Cells         []Cell
	Kernel        string
	Language      string
	Format        int
	FormatMinor   int
	CodeCells     int
	MarkdownCells int
}

// Summary describes a notebook's contents.
type Summary struct {
	Kernel         string `json:"kernel"`
	Language       string `json:"language"`
	TotalCells     int    `json:"total_cells"`
	CodeCells      int    `json:"code_cells"`
	MarkdownCells  int    `json:"markdown_cells"`
	TotalCodeLines int    `json:"total_code_lines"`
	ExecutedCells  int    `json:"executed_cells"`
	Format         string `json:"nbformat"`
}

type document struct {
	Cells       []rawCell `json:"cells"`
	Metadata    metadata  `json:"metadata"`
	Format      *int      `json:"nbformat"`
	FormatMinor int       `json:"nbformat_minor"`
}

type metadata struct {
	Kernelspec struct {
		DisplayName string `json:"display_name"`
		Language    string `json:"language"`
	} `json:"kernelspec"`
	LanguageInfo struct {
		Name string `json:"name"`
	} `json:"language_info"`
}

type rawCell struct {
	Type           string            `json:"cell_type"`
	Source         source            `json:"source"`
	ExecutionCount *int              `json:"execution_count"`
	Outputs        []json.RawMessage `json:"outputs"`
}

// source accepts both notebook encodings of cell text: one string, or a
// list of lines that already carry their newlines.
type source string

func (s *source) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*s = source(text)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return fmt.Errorf("cell source: %w", err)
	}
	*s = source(strings.Join(lines, ""))
	return nil
}

// Parse decodes an .ipynb document.
func Parse(data []byte) (*Notebook, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	nb := &Notebook{
		Kernel:      doc.Metadata.Kernelspec.DisplayName,
		Language:    doc.Metadata.LanguageInfo.Name,
		Format:      4,
		FormatMinor: doc.FormatMinor,
		Cells:       make([]Cell, 0, len(doc.Cells)),
	}
	if nb.Kernel == "" {
		nb.Kernel = "Unknown"
	}
	if nb.Language == "" {
		nb.Language = doc.Metadata.Kernelspec.Language
	}
	if nb.Language == "" {
		nb.Language = "python"
	}
	if doc.Format != nil {
		nb.Format = *doc.Format
	}

	for idx, raw := range doc.Cells {
		cell := Cell{
			Index:          idx,
			Type:           raw.Type,
			Source:         string(raw.Source),
			ExecutionCount: raw.ExecutionCount,
			Outputs:        raw.Outputs,
		}
		if cell.Type == "" {
			cell.Type = CellCode
		}
		switch cell.Type {
		case CellCode:
			nb.CodeCells++
		case CellMarkdown:
			nb.MarkdownCells++
		}
		nb.Cells = append(nb.Cells, cell)
	}
	return nb, nil
}

// Code joins every non-empty code cell into one script. With separators
// each cell is preceded by a "# --- Cell N ---" comment, N counting from 1.
func (nb *Notebook) Code(separators bool) string {
	return nb.CellRange(0, len(nb.Cells)-1, separators)
}

// CellRange joins the non-empty code cells whose index lies in [start, end].
func (nb *Notebook) CellRange(start, end int, separators bool) string {
	var parts []string
	for _, cell := range nb.Cells {
		if cell.Index < start || cell.Index > end || cell.Type != CellCode {
			continue
		}
		src := strings.TrimSpace(cell.Source)
		if src == "" {
			continue
		}
		if separators {
			parts = append(parts, fmt.Sprintf("# --- Cell %d ---", cell.Index+1))
		}
		parts = append(parts, src)
	}
	return strings.Join(parts, "\n\n")
}

// CodeCell returns the source of the code cell at index.
func (nb *Notebook) CodeCell(index int) (string, bool) {
	if index < 0 || index >= len(nb.Cells) || nb.Cells[index].Type != CellCode {
		return "", false
	}
	return nb.Cells[index].Source, true
}

// Summary counts the notebook's cells and code lines.
func (nb *Notebook) Summary() Summary {
	s := Summary{
		Kernel:        nb.Kernel,
		Language:      nb.Language,
		TotalCells:    len(nb.Cells),
		CodeCells:     nb.CodeCells,
		MarkdownCells: nb.MarkdownCells,
		Format:        fmt.Sprintf("%d.%d", nb.Format, nb.FormatMinor),
	}
	for _, cell := range nb.Cells {
		if cell.Type != CellCode {
			continue
		}
		s.TotalCodeLines += strings.Count(cell.Source, "\n") + 1
		if cell.ExecutionCount != nil {
			s.ExecutedCells++
		}
	}
	return s
}
