package asn1stream_test

import (
	"bytes"
	"fmt"

	"github.com/gemalto/asn1stream"
	"github.com/gemalto/asn1stream/tlv"
)

func Example_pull() {
	in := []byte{0x30, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x02}

	r, err := asn1stream.NewReader(bytes.NewReader(in), nil)
	if err != nil {
		panic(err)
	}
	defer r.Close()

	for {
		ev, err := r.ReadEvent(false)
		if err != nil {
			panic(err)
		}
		if ev == nil || ev.Type == tlv.EventEOF {
			break
		}
		fmt.Println(ev.Value)
	}

	// Output:
	// Sequence
	//   Integer: 1
	//   Integer: 2
}

func Example_push() {
	src := asn1stream.NewPushSource()
	r, err := asn1stream.NewReader(src, &asn1stream.Options{
		StripSequence: true,
		OnEvent: func(ev *tlv.Event) {
			if ev.Type == tlv.EventObject {
				fmt.Printf("  %v\n", ev.Value)
				return
			}
			fmt.Println(ev.Type)
		},
	})
	if err != nil {
		panic(err)
	}

	// bytes trickle in, as from a network
	for _, b := range []byte{0x30, 0x80, 0x02, 0x01, 0x01, 0x0c, 0x02, 0x68, 0x69, 0x00, 0x00} {
		if err := src.WriteByte(b); err != nil {
			panic(err)
		}
	}
	_ = src.Close()
	_ = r.Close()

	// Output:
	// BEGIN_SEQUENCE
	//   Integer: 1
	//   UTF8String: "hi"
	// END_SEQUENCE
	// EOF
	// CLOSE
}
