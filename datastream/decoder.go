package datastream

import (
	"bufio"
	"bytes"
	"io"
	"iter"
)

const maxLineSize = 4 << 20

// Decoder reads legacy parts line by line from a reader.
type Decoder struct {
	r io.Reader
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// All yields decoded parts until EOF. The first decode or read error is
// yielded and ends the sequence. Blank lines are skipped.
func (d *Decoder) All() iter.Seq2[Part, error] {
	return func(yield func(Part, error) bool) {
		sc := bufio.NewScanner(d.r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		for sc.Scan() {
			line := sc.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			p, err := Decode(line)
			if err != nil {
				yield(nil, err)
				return
			}

			if !yield(p, nil) {
				return
			}
		}

		if err := sc.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// EncodeAll encodes parts into one buffer.
func EncodeAll(parts ...Part) ([]byte, error) {
	var buf bytes.Buffer
	for _, p := range parts {
		b, err := Encode(p)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}

	return buf.Bytes(), nil
}
