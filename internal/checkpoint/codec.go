// Package checkpoint reads and writes the text restart format for reptiles.
//
// The format is whitespace-tokenized and strictly ordered: every tag must
// appear where expected or decoding fails. Floats are written with the
// shortest representation that parses back to the same bits, so a decoded
// reptile is identical to the encoded one.
package checkpoint

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"reptation/internal/model"
	"reptation/internal/reptile"
)

const (
	formatTag     = "reptation_checkpoint"
	FormatVersion = 1
)

var (
	ErrMalformed           = errors.New("malformed checkpoint")
	ErrIncompatibleVersion = errors.New("incompatible checkpoint version")
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Encoder writes checkpoint records. The first write error sticks and is
// returned by every later call.
type Encoder struct {
	w   *bufio.Writer
	err error
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

func (e *Encoder) line(indent int, fields ...string) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, "%s%s\n", strings.Repeat("  ", indent), strings.Join(fields, " "))
}

// Header writes the format tag and the number of reptiles that follow.
func (e *Encoder) Header(n int) error {
	e.line(0, formatTag, strconv.Itoa(FormatVersion))
	e.line(0, "nreptiles", strconv.Itoa(n))
	return e.err
}

// Reptile writes one reptile, beads front to back.
func (e *Encoder) Reptile(r *reptile.Reptile) error {
	e.line(0, "Reptile", "{")
	e.line(1, "direction", strconv.Itoa(int(r.Direction)))
	e.line(1, "length", strconv.Itoa(r.Len()))
	for i := 0; i < r.Len(); i++ {
		e.point(1, r.At(i))
	}
	e.line(0, "}")
	return e.err
}

// Point writes a single bead record.
func (e *Encoder) Point(s *model.Snapshot) error {
	e.point(0, s)
	return e.err
}

func (e *Encoder) point(indent int, s *model.Snapshot) {
	e.line(indent, "Reptile_point", "{")
	e.line(indent+1, "age", formatFloat(s.Age))
	e.line(indent+1, "branching", formatFloat(s.Branching))
	e.line(indent+1, "numElectrons", strconv.Itoa(len(s.Positions)))
	for _, p := range s.Positions {
		e.line(indent+1, formatFloat(p[0]), formatFloat(p[1]), formatFloat(p[2]))
	}
	e.properties(indent+1, s.Properties)
	e.line(indent, "}")
}

func (e *Encoder) properties(indent int, p model.Properties) {
	e.line(indent, "Properties_point ", "{")
	e.line(indent+1, "count", strconv.Itoa(p.Count))
	e.line(indent+1, "weight", formatFloat(p.Weight))
	e.line(indent+1, "kinetic", formatFloat(p.Kinetic))
	e.line(indent+1, "potential", formatFloat(p.Potential))
	e.line(indent+1, "nonlocal", formatFloat(p.NonLocal))
	aux := make([]string, 0, len(p.Aux)+2)
	aux = append(aux, "naux", strconv.Itoa(len(p.Aux)))
	for _, x := range p.Aux {
		aux = append(aux, formatFloat(x))
	}
	e.line(indent+1, aux...)
	e.line(indent, "}")
}

func (e *Encoder) Flush() error {
	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

// Decoder reads checkpoint records token by token.
type Decoder struct {
	sc  *bufio.Scanner
	pos int
}

func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	return &Decoder{sc: sc}
}

func (d *Decoder) next() (string, error) {
	if !d.sc.Scan() {
		if err := d.sc.Err(); err != nil {
			return "", fmt.Errorf("%w: token %d: %v", ErrMalformed, d.pos, err)
		}
		return "", fmt.Errorf("%w: token %d: unexpected end of input", ErrMalformed, d.pos)
	}
	d.pos++
	return d.sc.Text(), nil
}

func (d *Decoder) expect(tag string) error {
	got, err := d.next()
	if err != nil {
		return fmt.Errorf("%w (expected %q)", err, tag)
	}
	if got != tag {
		return fmt.Errorf("%w: token %d: expected %q, got %q", ErrMalformed, d.pos, tag, got)
	}
	return nil
}

func (d *Decoder) float(what string) (float64, error) {
	tok, err := d.next()
	if err != nil {
		return 0, fmt.Errorf("%w (expected %s)", err, what)
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: token %d: %s %q is not a number", ErrMalformed, d.pos, what, tok)
	}
	return v, nil
}

func (d *Decoder) integer(what string, floor int) (int, error) {
	tok, err := d.next()
	if err != nil {
		return 0, fmt.Errorf("%w (expected %s)", err, what)
	}
	v, err := strconv.Atoi(tok)
	if err != nil || v < floor {
		return 0, fmt.Errorf("%w: token %d: invalid %s %q", ErrMalformed, d.pos, what, tok)
	}
	return v, nil
}

func (d *Decoder) tagged(tag string) (float64, error) {
	if err := d.expect(tag); err != nil {
		return 0, err
	}
	return d.float(tag)
}

// Header reads the format tag and returns the number of reptiles.
func (d *Decoder) Header() (int, error) {
	if err := d.expect(formatTag); err != nil {
		return 0, err
	}
	v, err := d.integer("format version", 0)
	if err != nil {
		return 0, err
	}
	if v != FormatVersion {
		return 0, fmt.Errorf("%w: format version %d, this build reads %d", ErrIncompatibleVersion, v, FormatVersion)
	}
	if err := d.expect("nreptiles"); err != nil {
		return 0, err
	}
	return d.integer("reptile count", 0)
}

// Reptile reads one reptile record.
func (d *Decoder) Reptile() (*reptile.Reptile, error) {
	if err := d.expect("Reptile"); err != nil {
		return nil, err
	}
	if err := d.expect("{"); err != nil {
		return nil, err
	}
	if err := d.expect("direction"); err != nil {
		return nil, err
	}
	dv, err := d.integer("direction", 0)
	if err != nil {
		return nil, err
	}
	dir, err := reptile.ParseDirection(dv)
	if err != nil {
		return nil, fmt.Errorf("%w: token %d: %v", ErrMalformed, d.pos, err)
	}
	if err := d.expect("length"); err != nil {
		return nil, err
	}
	n, err := d.integer("length", 0)
	if err != nil {
		return nil, err
	}
	// Counts come from the input, so slices grow as records decode.
	var beads []model.Snapshot
	for i := 0; i < n; i++ {
		s, err := d.Point()
		if err != nil {
			return nil, fmt.Errorf("bead %d: %w", i, err)
		}
		beads = append(beads, s)
	}
	if err := d.expect("}"); err != nil {
		return nil, err
	}
	return reptile.FromSnapshots(max(n, 2), dir, beads)
}

// Point reads a single bead record.
func (d *Decoder) Point() (model.Snapshot, error) {
	var s model.Snapshot
	if err := d.expect("Reptile_point"); err != nil {
		return s, err
	}
	if err := d.expect("{"); err != nil {
		return s, err
	}
	var err error
	if s.Age, err = d.tagged("age"); err != nil {
		return s, err
	}

	tok, err := d.next()
	if err != nil {
		return s, fmt.Errorf("%w (expected %q)", err, "branching")
	}
	if tok != "branching" {
		if tok == "numElectrons" {
			return s, fmt.Errorf("%w: token %d: point has no branching weight; config files are too old", ErrIncompatibleVersion, d.pos)
		}
		return s, fmt.Errorf("%w: token %d: expected %q, got %q", ErrMalformed, d.pos, "branching", tok)
	}
	if s.Branching, err = d.float("branching"); err != nil {
		return s, err
	}

	if err := d.expect("numElectrons"); err != nil {
		return s, err
	}
	n, err := d.integer("numElectrons", 1)
	if err != nil {
		return s, err
	}
	for i := 0; i < n; i++ {
		var v model.Vec3
		for k := 0; k < 3; k++ {
			if v[k], err = d.float("coordinate"); err != nil {
				return s, fmt.Errorf("particle %d: %w", i, err)
			}
		}
		s.Positions = append(s.Positions, v)
	}
	if s.Properties, err = d.properties(); err != nil {
		return s, err
	}
	if err := d.expect("}"); err != nil {
		return s, err
	}
	return s, nil
}

func (d *Decoder) properties() (model.Properties, error) {
	var p model.Properties
	if err := d.expect("Properties_point"); err != nil {
		return p, err
	}
	if err := d.expect("{"); err != nil {
		return p, err
	}
	if err := d.expect("count"); err != nil {
		return p, err
	}
	var err error
	if p.Count, err = d.integer("count", 0); err != nil {
		return p, err
	}
	for _, f := range []struct {
		tag string
		dst *float64
	}{
		{"weight", &p.Weight},
		{"kinetic", &p.Kinetic},
		{"potential", &p.Potential},
		{"nonlocal", &p.NonLocal},
	} {
		if *f.dst, err = d.tagged(f.tag); err != nil {
			return p, err
		}
	}
	if err := d.expect("naux"); err != nil {
		return p, err
	}
	m, err := d.integer("naux", 0)
	if err != nil {
		return p, err
	}
	for i := 0; i < m; i++ {
		v, err := d.float("aux value")
		if err != nil {
			return p, err
		}
		p.Aux = append(p.Aux, v)
	}
	if err := d.expect("}"); err != nil {
		return p, err
	}
	return p, nil
}

// Encode writes a full checkpoint holding reptiles in order.
func Encode(w io.Writer, reptiles []*reptile.Reptile) error {
	enc := NewEncoder(w)
	if err := enc.Header(len(reptiles)); err != nil {
		return err
	}
	for _, r := range reptiles {
		if err := enc.Reptile(r); err != nil {
			return err
		}
	}
	return enc.Flush()
}

// Decode reads a full checkpoint. Trailing input after the last reptile is
// rejected.
func Decode(r io.Reader) ([]*reptile.Reptile, error) {
	dec := NewDecoder(r)
	n, err := dec.Header()
	if err != nil {
		return nil, err
	}
	var out []*reptile.Reptile
	for i := 0; i < n; i++ {
		r, err := dec.Reptile()
		if err != nil {
			return nil, fmt.Errorf("reptile %d: %w", i, err)
		}
		out = append(out, r)
	}
	if dec.sc.Scan() {
		return nil, fmt.Errorf("%w: token %d: unexpected %q after last reptile", ErrMalformed, dec.pos+1, dec.sc.Text())
	}
	return out, nil
}

// EncodePoint writes one bead in the checkpoint record layout.
func EncodePoint(w io.Writer, s model.Snapshot) error {
	enc := NewEncoder(w)
	if err := enc.Point(&s); err != nil {
		return err
	}
	return enc.Flush()
}

func DecodePoint(r io.Reader) (model.Snapshot, error) {
	return NewDecoder(r).Point()
}
