// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package display

import "strings"

const (
	Cols = 20
	Rows = 4
)

// Buffer is the character matrix of the 20x4 display. Writes outside the
// matrix are clipped; bytes above 127 are stored as spaces.
type Buffer struct {
	cells    [Rows][Cols]byte
	col, row int
}

func NewBuffer() *Buffer {
	b := &Buffer{}
	b.Clear()
	return b
}

func (b *Buffer) Clear() {
	for r := range b.cells {
		for c := range b.cells[r] {
			b.cells[r][c] = ' '
		}
	}
	b.col, b.row = 0, 0
}

func (b *Buffer) SetCursor(col, row int) {
	b.col, b.row = col, row
}

// WriteText writes s at the cursor and advances it, stopping at the end of
// the row.
func (b *Buffer) WriteText(s string) {
	b.CopyAt(s, b.col, b.row)
}

// CopyAt writes s at col,row and leaves the cursor after it.
func (b *Buffer) CopyAt(s string, col, row int) {
	if col < 0 || col >= Cols || row < 0 || row >= Rows {
		return
	}
	n := min(len(s), Cols-col)
	for i := range n {
		c := s[i]
		if c >= 128 {
			c = ' '
		}
		b.cells[row][col+i] = c
	}
	b.col, b.row = col+n, row
}

func (b *Buffer) Line(row int) string {
	if row < 0 || row >= Rows {
		return ""
	}
	return string(b.cells[row][:])
}

func (b *Buffer) Lines() []string {
	out := make([]string, Rows)
	for r := range Rows {
		out[r] = b.Line(r)
	}
	return out
}

func (b *Buffer) String() string {
	return strings.Join(b.Lines(), "\n")
}
