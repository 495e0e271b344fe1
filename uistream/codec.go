package uistream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Headers are the fixed response headers of a UI message stream.
var Headers = map[string]string{
	"Content-Type":                  "text/event-stream",
	"Cache-Control":                 "no-cache",
	"Connection":                    "keep-alive",
	"X-Vercel-Ai-Ui-Message-Stream": "v1",
	"X-Accel-Buffering":             "no",
}

// DoneFrame terminates every encoded stream.
var DoneFrame = []byte("data: [DONE]\n\n")

// ErrUnterminated is reported when a stream ends without the [DONE] sentinel.
var ErrUnterminated = errors.New("uistream: stream ended without [DONE]")

const (
	dataPrefix = "data: "
	doneValue  = "[DONE]"
)

// ParseError reports a frame that could not be decoded into a chunk.
type ParseError struct {
	Data string
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid ui message chunk: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error { return e.Err }

// MarshalChunk returns the JSON object for c including its type field.
func MarshalChunk(c Chunk) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode %s chunk: %w", c.ChunkType(), err)
	}

	return sjson.SetBytes(bytes.TrimSuffix(buf.Bytes(), []byte("\n")), "type", string(c.ChunkType()))
}

// Encode frames c as one server-sent event.
func Encode(c Chunk) ([]byte, error) {
	b, err := MarshalChunk(c)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(dataPrefix)+len(b)+2)
	out = append(out, dataPrefix...)
	out = append(out, b...)
	out = append(out, '\n', '\n')

	return out, nil
}

// EncodeStream frames every chunk and appends DoneFrame exactly once, also
// when the chunk sequence carried an Error chunk. An encoding failure is
// yielded and still followed by DoneFrame.
func EncodeStream(chunks iter.Seq[Chunk]) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for c := range chunks {
			b, err := Encode(c)
			if err != nil {
				if yield(nil, err) {
					yield(DoneFrame, nil)
				}
				return
			}

			if !yield(b, nil) {
				return
			}
		}

		yield(DoneFrame, nil)
	}
}

var decoders = map[ChunkType]func([]byte) (Chunk, error){
	TypeStart:               decodeAs[Start],
	TypeFinish:              decodeAs[Finish],
	TypeStartStep:           decodeAs[StartStep],
	TypeFinishStep:          decodeAs[FinishStep],
	TypeTextStart:           decodeAs[TextStart],
	TypeTextDelta:           decodeAs[TextDelta],
	TypeTextEnd:             decodeAs[TextEnd],
	TypeReasoningStart:      decodeAs[ReasoningStart],
	TypeReasoningDelta:      decodeAs[ReasoningDelta],
	TypeReasoningEnd:        decodeAs[ReasoningEnd],
	TypeToolInputStart:      decodeAs[ToolInputStart],
	TypeToolInputDelta:      decodeAs[ToolInputDelta],
	TypeToolInputAvailable:  decodeAs[ToolInputAvailable],
	TypeToolOutputAvailable: decodeAs[ToolOutputAvailable],
	TypeToolOutputError:     decodeAs[ToolOutputError],
	TypeError:               decodeAs[Error],
	TypeFile:                decodeAs[File],
	TypeSourceURL:           decodeAs[SourceURL],
	TypeSourceDocument:      decodeAs[SourceDocument],
	TypeAbort:               decodeAs[Abort],
	TypeMessageMetadata:     decodeAs[MessageMetadata],
}

func decodeAs[T Chunk](b []byte) (Chunk, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// UnmarshalChunk decodes one JSON chunk object dispatching on its type field.
func UnmarshalChunk(b []byte) (Chunk, error) {
	if !gjson.ValidBytes(b) {
		return nil, &ParseError{Data: string(b), Err: errors.New("malformed JSON")}
	}

	typ := gjson.GetBytes(b, "type")
	if typ.Type != gjson.String {
		return nil, &ParseError{Data: string(b), Err: errors.New(`missing string "type" field`)}
	}

	dec, ok := decoders[ChunkType(typ.Str)]
	if !ok {
		return nil, &ParseError{Data: string(b), Err: fmt.Errorf("unknown chunk type %q", typ.Str)}
	}

	c, err := dec(b)
	if err != nil {
		return nil, &ParseError{Data: string(b), Err: err}
	}

	return c, nil
}

// Decoder reads a server-sent UI message stream.
type Decoder struct {
	r io.Reader
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// All yields chunks until the [DONE] sentinel. A stream that ends without
// the sentinel yields ErrUnterminated. Comment lines and non-data fields are
// ignored; multiple data lines of one event are joined with a newline.
func (d *Decoder) All() iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		sc := bufio.NewScanner(d.r)
		sc.Buffer(make([]byte, 0, 64*1024), 4<<20)

		var data []byte
		pending := false

		for sc.Scan() {
			line := sc.Bytes()

			if len(line) == 0 {
				if !pending {
					continue
				}

				if string(data) == doneValue {
					return
				}

				c, err := UnmarshalChunk(data)
				if !yield(c, err) || err != nil {
					return
				}

				data, pending = data[:0], false

				continue
			}

			value, ok := bytes.CutPrefix(line, []byte("data:"))
			if !ok {
				continue
			}
			value = bytes.TrimPrefix(value, []byte(" "))

			if pending {
				data = append(data, '\n')
			}
			data = append(data, value...)
			pending = true
		}

		if err := sc.Err(); err != nil {
			yield(nil, err)
			return
		}

		if pending && string(data) == doneValue {
			return
		}

		yield(nil, ErrUnterminated)
	}
}
