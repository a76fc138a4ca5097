package keyboard

import (
	"fmt"
	"io"

	"github.com/sirreidlos/amarui/internal/runtime/task"
)

// KeypressPrinter is a never-ending task that decodes scancodes from a
// stream and prints each key to out: characters as themselves, other keys
// by name.
type KeypressPrinter struct {
	stream  *ScancodeStream
	decoder *Decoder
	out     io.Writer
	keys    uint64
}

// PrintKeypresses returns the printer task future.
func PrintKeypresses(stream *ScancodeStream, out io.Writer) *KeypressPrinter {
	return &KeypressPrinter{stream: stream, decoder: NewDecoder(), out: out}
}

func (p *KeypressPrinter) Poll(cx *task.Context) task.Poll {
	for {
		b, ready := p.stream.PollNext(cx)
		if ready == task.Pending {
			return task.Pending
		}
		key, ok := p.decoder.Feed(b)
		if !ok {
			continue
		}
		p.keys++
		if key.IsRune {
			fmt.Fprintf(p.out, "%c", key.Rune)
		} else {
			fmt.Fprintf(p.out, "%v", key.Raw)
		}
	}
}

// Keys returns the number of keys printed.
func (p *KeypressPrinter) Keys() uint64 { return p.keys }
