package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"

	"github.com/ansel1/merry"
	"github.com/gemalto/asn1stream"
	"github.com/gemalto/asn1stream/ber"
	"github.com/gemalto/asn1stream/internal/hexutil"
	"github.com/gemalto/asn1stream/tlv"
)

const FormatHex = "hex"
const FormatBinary = "bin"

const (
	OutputText   = "text"
	OutputJSON   = "json"
	OutputHex    = "hex"
	OutputEvents = "events"
)

func main() {

	flag.Usage = func() {
		s := `ppber - BER/DER pretty printer

Usage:  ppber [options] [input]

Pretty prints a stream of BER or DER encoded values.  Reads hex or
binary input, and feeds it to a stream reader in chunks, the way
bytes arrive from a network, printing each value as it completes.

The input argument should be a hex string.  If not present, input will
be read from the file given with -f, or from standard in.

When reading hex input, any non-hex characters, such as whitespace or
embedded formatting characters, will be ignored.

With -strip, the outermost SEQUENCE of each value is printed as
begin and end markers around its elements.

Examples:

    ppber 3006020101020102
    openssl x509 -outform der -in cert.pem | ppber -i bin -strip

Output (in 'text' format):

    Sequence
      Integer: 1
      Integer: 2

Output with -strip:

    Sequence {
      Integer: 1
      Integer: 2
    }
`
		_, _ = fmt.Fprintln(flag.CommandLine.Output(), s)
		flag.PrintDefaults()
	}

	var inFormat string
	var outFormat string
	var inFile string
	var strip bool
	var chunk int
	flag.StringVar(&inFormat, "i", "", "input format: hex|bin, defaults to auto detect")
	flag.StringVar(&outFormat, "o", OutputText, "output format: text|json|hex|events")
	flag.StringVar(&inFile, "f", "", "input file name, defaults to stdin")
	flag.BoolVar(&strip, "strip", false, "print the outermost sequence as begin/end markers")
	flag.IntVar(&chunk, "chunk", 0, "feed the input in chunks of this many bytes, defaults to all at once")

	flag.Parse()

	var in []byte
	var err error
	switch {
	case inFile != "":
		in, err = ioutil.ReadFile(inFile)
		if err != nil {
			fail("error reading input file", err)
		}
	case flag.Arg(0) != "":
		in = []byte(flag.Arg(0))
	default:
		in, err = ioutil.ReadAll(os.Stdin)
		if err != nil {
			fail("error reading standard input", err)
		}
	}

	if inFormat == "" {
		inFormat = detectFormat(in)
	}

	switch strings.ToLower(inFormat) {
	case FormatHex:
		in, err = hexutil.DecodeString(string(in))
		if err != nil {
			fail("error parsing hex", err)
		}
	case FormatBinary:
	default:
		fail("invalid input format: "+inFormat, nil)
	}

	p := &printer{w: os.Stdout, format: strings.ToLower(outFormat)}
	if err := run(in, strip, chunk, p); err != nil {
		fail("error decoding", err)
	}
}

// detectFormat guesses hex if in is all printable text.
func detectFormat(in []byte) string {
	for _, b := range in {
		if (b < 0x20 || b > 0x7e) && b != '\n' && b != '\r' && b != '\t' {
			return FormatBinary
		}
	}
	return FormatHex
}

// run pushes in to a Reader in chunks of the given size, printing events as they
// are delivered.
func run(in []byte, strip bool, chunk int, p *printer) error {
	src := asn1stream.NewPushSource()
	r, err := asn1stream.NewReader(src, &asn1stream.Options{
		StripSequence: strip,
		OnEvent:       p.print,
	})
	if err != nil {
		return err
	}
	defer r.Close()

	if chunk <= 0 {
		chunk = len(in)
	}
	for len(in) > 0 {
		n := chunk
		if n > len(in) {
			n = len(in)
		}
		if _, err := src.Write(in[:n]); err != nil {
			return err
		}
		in = in[n:]
	}
	if err := src.Close(); err != nil {
		return err
	}
	return p.err
}

type printer struct {
	w      io.Writer
	format string
	depth  int
	count  int
	err    error
}

type marker struct {
	Event      string `json:"event"`
	Indefinite bool   `json:"indefinite"`
	Length     uint64 `json:"length,omitempty"`
}

func (p *printer) print(ev *tlv.Event) {
	switch ev.Type {
	case tlv.EventClose:
		return
	case tlv.EventEOF:
		if ev.Err != nil {
			p.err = merry.Prepend(ev.Err, "input ended inside a value")
		}
		return
	}

	if p.format == OutputEvents {
		fmt.Fprintln(p.w, ev.String())
		return
	}

	indent := strings.Repeat("  ", p.depth)
	if ev.Type == tlv.EventEndSequence {
		p.depth--
		indent = strings.Repeat("  ", p.depth)
	}

	switch p.format {
	case OutputHex:
		if len(ev.Raw) > 0 {
			fmt.Fprintf(p.w, "%s%s\n", indent, hex.EncodeToString(ev.Raw))
		}
	case OutputJSON:
		var v interface{} = ev.Value
		if ev.Type != tlv.EventObject {
			v = marker{Event: ev.Type.String(), Indefinite: ev.Sequence.Indefinite, Length: ev.Sequence.TotalLength}
		} else if ev.Err != nil {
			v = map[string]string{"error": ev.Err.Error(), "raw": hex.EncodeToString(ev.Raw)}
		}
		s, err := json.MarshalIndent(v, indent, "  ")
		if err != nil {
			fail("error printing JSON", err)
		}
		fmt.Fprintf(p.w, "%s%s\n", indent, s)
	default:
		p.printText(indent, ev)
	}

	if ev.Type == tlv.EventBeginSequence {
		p.depth++
	}
}

func (p *printer) printText(indent string, ev *tlv.Event) {
	switch ev.Type {
	case tlv.EventBeginSequence:
		p.separate()
		h, _ := ev.Raw.Header()
		fmt.Fprintf(p.w, "%s%s {\n", indent, tlv.TagString(h.Class, h.Tag))
	case tlv.EventEndSequence:
		fmt.Fprintf(p.w, "%s}\n", indent)
	case tlv.EventObject:
		if p.depth == 0 {
			p.separate()
		}
		if obj, ok := ev.Value.(*ber.Object); ok {
			ber.Print(p.w, indent, obj)
		} else {
			_ = tlv.Print(p.w, indent, ev.Raw)
			if ev.Err != nil {
				fmt.Fprintf(p.w, " (%v)", ev.Err)
			}
		}
		fmt.Fprintln(p.w)
	}
}

// separate puts a blank line between top level values.
func (p *printer) separate() {
	if p.count > 0 {
		fmt.Fprintln(p.w)
	}
	p.count++
}

func fail(msg string, err error) {
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, msg+":", err)
	} else {
		_, _ = fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(1)
}
