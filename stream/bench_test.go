package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
)

func BenchmarkStream_Read(b *testing.B) {
	data := pattern(1 << 20)
	p := testPool(b)

	for _, size := range []int{512, 8 << 10, 64 << 10} {
		b.Run(fmt.Sprintf("buffer_%d", size), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			buf := make([]byte, 4096)
			for b.Loop() {
				s := New(bytes.NewReader(data), WithPool(p), WithBufferSize(size))
				for {
					_, err := s.Read(buf)
					if err == io.EOF {
						break
					}
					if err != nil {
						b.Fatal(err)
					}
				}
			}
		})
	}
}

func BenchmarkStream_Write(b *testing.B) {
	chunk := pattern(256)
	p := testPool(b)

	b.SetBytes(int64(len(chunk)) * 1024)
	for b.Loop() {
		s := New(io.Discard, WithPool(p))
		for range 1024 {
			if _, err := s.Write(chunk); err != nil {
				b.Fatal(err)
			}
		}
		if err := s.Flush(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFromChan(b *testing.B) {
	p := testPool(b)
	const n = 10_000

	for b.Loop() {
		ch := make(chan int, 512)
		go func() {
			defer close(ch)
			for i := range n {
				ch <- i
			}
		}()

		it := FromChan(ch, WithPool(p))
		for _, err := range it.All(context.Background()) {
			if err != nil {
				b.Fatal(err)
			}
		}
	}
}
