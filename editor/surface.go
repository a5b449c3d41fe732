package editor

import (
	"strings"

	"ghosttab/logger"

	"github.com/neovim/go-client/nvim"
)

// Snapshot is the buffer state a completion request is computed from.
type Snapshot struct {
	Lines    []string
	Row      int // 1-indexed cursor line
	Col      int // 0-indexed byte column
	FilePath string
	Filetype string
}

// Surface is the slice of the editor the loop drives: buffer snapshots,
// ghost text, and inserting accepted suggestions. Implemented by nvimSurface
// for a live Neovim connection.
type Surface interface {
	Snapshot() (*Snapshot, error)
	ShowGhostText(row int, chunks []nvim.TextChunk) error
	ClearGhostText() error
	InsertAtCursor(text string) error
}

// nvimSurface backs Surface with nvim RPC calls against the current buffer.
type nvimSurface struct {
	n    *nvim.Nvim
	nsID int
}

func (s *nvimSurface) Snapshot() (*Snapshot, error) {
	buf, err := s.n.CurrentBuffer()
	if err != nil {
		return nil, err
	}
	win, err := s.n.CurrentWindow()
	if err != nil {
		return nil, err
	}
	pos, err := s.n.WindowCursor(win)
	if err != nil {
		return nil, err
	}
	rawLines, err := s.n.BufferLines(buf, 0, -1, true)
	if err != nil {
		return nil, err
	}
	name, err := s.n.BufferName(buf)
	if err != nil {
		return nil, err
	}
	var filetype string
	if err := s.n.BufferOption(buf, "filetype", &filetype); err != nil {
		logger.Debug("editor: reading filetype failed: %v", err)
	}

	lines := make([]string, len(rawLines))
	for i, l := range rawLines {
		lines[i] = string(l)
	}

	return &Snapshot{
		Lines:    lines,
		Row:      pos[0],
		Col:      pos[1],
		FilePath: name,
		Filetype: filetype,
	}, nil
}

func (s *nvimSurface) ShowGhostText(row int, chunks []nvim.TextChunk) error {
	buf, err := s.n.CurrentBuffer()
	if err != nil {
		return err
	}
	_, err = s.n.SetBufferVirtualText(buf, s.nsID, row-1, chunks, nil)
	return err
}

func (s *nvimSurface) ClearGhostText() error {
	buf, err := s.n.CurrentBuffer()
	if err != nil {
		return err
	}
	return s.n.ClearBufferNamespace(buf, s.nsID, 0, -1)
}

func (s *nvimSurface) InsertAtCursor(text string) error {
	return s.n.Put(strings.Split(text, "\n"), "c", true, true)
}
