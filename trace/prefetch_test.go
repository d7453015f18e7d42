package trace_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachesim/trace"
)

type failingSource struct {
	remaining int
}

var errDisk = errors.New("disk on fire")

func (s *failingSource) Next() (trace.Record, error) {
	if s.remaining == 0 {
		return trace.Record{}, errDisk
	}
	s.remaining--
	return trace.Record{Address: uint64(s.remaining)}, nil
}

var _ = Describe("Prefetcher", func() {
	It("should deliver records in order", func() {
		var sb strings.Builder
		for i := 0; i < 1000; i++ {
			fmt.Fprintf(&sb, "# %d %x %d\n", i%2, i*16, i)
		}

		p := trace.Prefetch(context.Background(),
			trace.NewReader(strings.NewReader(sb.String())), 8)
		defer func() { _ = p.Close() }()

		for i := 0; i < 1000; i++ {
			rec, err := p.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Address).To(Equal(uint64(i * 16)))
			Expect(rec.Instructions).To(Equal(uint64(i)))
		}

		_, err := p.Next()
		Expect(err).To(Equal(io.EOF))
	})

	It("should forward parse errors in place and continue", func() {
		p := trace.Prefetch(context.Background(),
			trace.NewReader(strings.NewReader("# 0 0 1\nbad\n# 0 10 1\n")), 1)
		defer func() { _ = p.Close() }()

		_, err := p.Next()
		Expect(err).NotTo(HaveOccurred())

		_, err = p.Next()
		var perr *trace.ParseError
		Expect(errors.As(err, &perr)).To(BeTrue())

		rec, err := p.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Address).To(Equal(uint64(0x10)))

		_, err = p.Next()
		Expect(err).To(Equal(io.EOF))
	})

	It("should surface a read failure after queued records", func() {
		p := trace.Prefetch(context.Background(), &failingSource{remaining: 2}, 4)

		_, err := p.Next()
		Expect(err).NotTo(HaveOccurred())
		_, err = p.Next()
		Expect(err).NotTo(HaveOccurred())

		_, err = p.Next()
		Expect(err).To(MatchError(errDisk))
		Expect(p.Close()).To(MatchError(errDisk))
	})

	It("should stop the producer on close", func() {
		var sb strings.Builder
		for i := 0; i < 10000; i++ {
			sb.WriteString("# 0 0 1\n")
		}

		p := trace.Prefetch(context.Background(),
			trace.NewReader(strings.NewReader(sb.String())), 2)

		_, err := p.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).To(Succeed())
	})
})
