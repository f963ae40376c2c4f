// Package content holds the structured contract content model: a title, an
// ordered list of typed blocks and optional metadata.
package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pactline/backend/internal/apperr"
)

// Kind is the wire name of a block type.
type Kind string

const (
	KindHeader Kind = "header"
	KindClause Kind = "clause"
	KindList   Kind = "list"
	KindFooter Kind = "footer"
)

// MaxBlocks bounds the number of blocks a single contract may carry.
const MaxBlocks = 500

// Block is one of Header, Clause, ListItem or Footer.
type Block interface {
	BlockID() string
	Kind() Kind
	Text() string
	isBlock()
}

// Header is a heading line.
type Header struct {
	ID      string
	Content string
}

// Clause is a numbered or free-standing contractual clause.
type Clause struct {
	ID      string
	Content string
}

// ListItem is a list entry; its wire type is "list".
type ListItem struct {
	ID      string
	Content string
}

// Footer is trailing text such as signature lines.
type Footer struct {
	ID      string
	Content string
}

func (b Header) BlockID() string   { return b.ID }
func (b Header) Kind() Kind        { return KindHeader }
func (b Header) Text() string      { return b.Content }
func (Header) isBlock()            {}
func (b Clause) BlockID() string   { return b.ID }
func (b Clause) Kind() Kind        { return KindClause }
func (b Clause) Text() string      { return b.Content }
func (Clause) isBlock()            {}
func (b ListItem) BlockID() string { return b.ID }
func (b ListItem) Kind() Kind      { return KindList }
func (b ListItem) Text() string    { return b.Content }
func (ListItem) isBlock()          {}
func (b Footer) BlockID() string   { return b.ID }
func (b Footer) Kind() Kind        { return KindFooter }
func (b Footer) Text() string      { return b.Content }
func (Footer) isBlock()            {}

// NewBlock builds the block variant for kind.
func NewBlock(kind Kind, id, text string) (Block, error) {
	switch kind {
	case KindHeader:
		return Header{ID: id, Content: text}, nil
	case KindClause:
		return Clause{ID: id, Content: text}, nil
	case KindList:
		return ListItem{ID: id, Content: text}, nil
	case KindFooter:
		return Footer{ID: id, Content: text}, nil
	default:
		return nil, apperr.Validation("unknown block type %q", kind)
	}
}

// Content is the structured body of a contract.
type Content struct {
	Title    string
	Blocks   []Block
	Metadata map[string]string
}

// WireBlock is the JSON shape of a block.
type WireBlock struct {
	ID      string `json:"id"`
	Type    Kind   `json:"type"`
	Content string `json:"content"`
}

// Wire is the JSON shape of Content. Field order here is the canonical order.
type Wire struct {
	Title    string            `json:"title"`
	Blocks   []WireBlock       `json:"blocks"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ToWire converts c to its JSON shape.
func (c Content) ToWire() Wire {
	w := Wire{Title: c.Title, Blocks: make([]WireBlock, 0, len(c.Blocks))}
	for _, b := range c.Blocks {
		w.Blocks = append(w.Blocks, WireBlock{ID: b.BlockID(), Type: b.Kind(), Content: b.Text()})
	}
	if len(c.Metadata) > 0 {
		w.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			w.Metadata[k] = v
		}
	}
	return w
}

// FromWire converts the JSON shape into Content, rejecting unknown block types.
func FromWire(w Wire) (Content, error) {
	c := Content{Title: w.Title, Blocks: make([]Block, 0, len(w.Blocks))}
	for i, wb := range w.Blocks {
		b, err := NewBlock(wb.Type, wb.ID, wb.Content)
		if err != nil {
			return Content{}, fmt.Errorf("block %d: %w", i, err)
		}
		c.Blocks = append(c.Blocks, b)
	}
	if len(w.Metadata) > 0 {
		c.Metadata = make(map[string]string, len(w.Metadata))
		for k, v := range w.Metadata {
			c.Metadata[k] = v
		}
	}
	return c, nil
}

// MarshalJSON encodes c in its wire form.
func (c Content) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.ToWire())
}

// UnmarshalJSON decodes the wire form. Unknown fields are rejected.
func (c *Content) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w Wire
	if err := dec.Decode(&w); err != nil {
		return apperr.Validation("decode content: %v", err)
	}
	parsed, err := FromWire(w)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Clone returns a deep copy of c.
func (c Content) Clone() Content {
	out, _ := FromWire(c.ToWire())
	return out
}

// Validate checks the block schema: a non-empty title, at least one block,
// and every block with a unique non-empty id. All text must be valid UTF-8 so
// the canonical encoding never substitutes characters.
func Validate(c Content) error {
	if strings.TrimSpace(c.Title) == "" {
		return apperr.Validation("title is required")
	}
	if !utf8.ValidString(c.Title) {
		return apperr.Validation("title is not valid UTF-8")
	}
	if len(c.Blocks) == 0 {
		return apperr.Validation("at least one block is required")
	}
	if len(c.Blocks) > MaxBlocks {
		return apperr.Validation("too many blocks (max %d)", MaxBlocks)
	}
	seen := make(map[string]struct{}, len(c.Blocks))
	for i, b := range c.Blocks {
		if b == nil {
			return apperr.Validation("block %d is empty", i)
		}
		id := strings.TrimSpace(b.BlockID())
		if id == "" {
			return apperr.Validation("block %d has no id", i)
		}
		if !utf8.ValidString(b.BlockID()) || !utf8.ValidString(b.Text()) {
			return apperr.Validation("block %d is not valid UTF-8", i)
		}
		if _, dup := seen[id]; dup {
			return apperr.Validation("duplicate block id %q", id)
		}
		seen[id] = struct{}{}
		if _, err := NewBlock(b.Kind(), id, b.Text()); err != nil {
			return err
		}
	}
	for k, v := range c.Metadata {
		if !utf8.ValidString(k) || !utf8.ValidString(v) {
			return apperr.Validation("metadata is not valid UTF-8")
		}
	}
	return nil
}
