package session_test

import (
	"errors"
	"fmt"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/cachesim/session"
	"github.com/sarchlab/cachesim/timing/cache"
	"github.com/sarchlab/cachesim/timing/stats"
	"github.com/sarchlab/cachesim/trace"
)

func read(addr uint64) trace.Record {
	return trace.Record{Kind: cache.Read, Address: addr, Instructions: 1}
}

func write(addr uint64) trace.Record {
	return trace.Record{Kind: cache.Write, Address: addr, Instructions: 1}
}

var _ = Describe("Session", func() {
	var (
		mockCtrl     *gomock.Controller
		source       *MockSource
		observer     *MockObserver
		expectSource func(recs ...trace.Record)
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		source = NewMockSource(mockCtrl)
		observer = NewMockObserver(mockCtrl)

		expectSource = func(recs ...trace.Record) {
			calls := make([]any, 0, len(recs)+1)
			for _, rec := range recs {
				calls = append(calls, source.EXPECT().Next().Return(rec, nil))
			}
			calls = append(calls,
				source.EXPECT().Next().Return(trace.Record{}, io.EOF))
			gomock.InOrder(calls...)
		}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should reject an invalid configuration", func() {
		_, err := session.New(cache.Config{BlockSize: 16, Associativity: 1, Size: 100})

		var cfgErr *cache.ConfigurationError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
	})

	It("should run the direct-mapped walkthrough", func() {
		s, err := session.New(cache.DefaultConfig(), session.WithObserver(observer))
		Expect(err).NotTo(HaveOccurred())

		expectSource(read(0x0), read(0x1), read(0x4000), read(0x0))
		gomock.InOrder(
			observer.EXPECT().Observe(uint64(0), read(0x0), cache.AccessResult{}),
			observer.EXPECT().Observe(uint64(1), read(0x1), cache.AccessResult{Hit: true}),
			observer.EXPECT().Observe(uint64(2), read(0x4000), cache.AccessResult{}),
			observer.EXPECT().Observe(uint64(3), read(0x0), cache.AccessResult{}),
		)

		Expect(s.Run(source)).To(Succeed())

		st := s.Stats()
		Expect(st.Accesses).To(Equal(uint64(4)))
		Expect(st.Misses).To(Equal(uint64(3)))
		Expect(st.Instructions).To(Equal(uint64(4)))

		r, err := s.Report()
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Cycles).To(Equal(uint64(94)))
		Expect(r.IPC).To(BeNumerically("~", 4.0/94.0, 1e-12))
	})

	Context("with dirty evictions", func() {
		recs := []trace.Record{
			write(0x0), write(0x4000), write(0x8000), read(0x0),
		}

		It("should charge only the last flag by default", func() {
			s, err := session.New(cache.DefaultConfig())
			Expect(err).NotTo(HaveOccurred())
			expectSource(recs...)

			Expect(s.Run(source)).To(Succeed())
			Expect(s.Stats().DirtyWritebacks).To(Equal(uint64(1)))
		})

		It("should count every write-back when accumulating", func() {
			s, err := session.New(cache.DefaultConfig(),
				session.WithWritebackPolicy(stats.WritebackAccumulate))
			Expect(err).NotTo(HaveOccurred())
			expectSource(recs...)

			Expect(s.Run(source)).To(Succeed())
			Expect(s.Stats().DirtyWritebacks).To(Equal(uint64(3)))
		})
	})

	Describe("Parse errors", func() {
		perr := &trace.ParseError{Line: 2, Text: "junk", Err: trace.ErrFieldCount}

		It("should abort by default", func() {
			s, err := session.New(cache.DefaultConfig())
			Expect(err).NotTo(HaveOccurred())

			gomock.InOrder(
				source.EXPECT().Next().Return(read(0x0), nil),
				source.EXPECT().Next().Return(trace.Record{}, perr),
			)

			Expect(s.Run(source)).To(MatchError(perr))
			Expect(s.Stats().Accesses).To(Equal(uint64(1)))
		})

		It("should skip malformed lines when asked", func() {
			s, err := session.New(cache.DefaultConfig(),
				session.WithParseErrorPolicy(session.SkipParseErrors))
			Expect(err).NotTo(HaveOccurred())

			gomock.InOrder(
				source.EXPECT().Next().Return(read(0x0), nil),
				source.EXPECT().Next().Return(trace.Record{}, perr),
				source.EXPECT().Next().Return(read(0x0), nil),
				source.EXPECT().Next().Return(trace.Record{}, io.EOF),
			)

			Expect(s.Run(source)).To(Succeed())
			Expect(s.Stats().Accesses).To(Equal(uint64(2)))
			Expect(s.Stats().Misses).To(Equal(uint64(1)))
			Expect(s.SkippedLines()).To(ConsistOf(perr))
		})

		It("should not skip read failures", func() {
			s, err := session.New(cache.DefaultConfig(),
				session.WithParseErrorPolicy(session.SkipParseErrors))
			Expect(err).NotTo(HaveOccurred())

			ioErr := errors.New("device gone")
			source.EXPECT().Next().Return(trace.Record{}, ioErr)

			Expect(s.Run(source)).To(MatchError(ioErr))
		})
	})

	It("should report no data for an empty trace", func() {
		s, err := session.New(cache.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())
		expectSource()

		Expect(s.Run(source)).To(Succeed())
		_, err = s.Report()
		Expect(err).To(MatchError(stats.ErrNoData))
	})

	It("should agree with the reference model on a real trace", func() {
		s, err := session.New(
			cache.Config{BlockSize: 16, Associativity: 4, Size: 1024,
				MissPenalty: 30, DirtyWritebackPenalty: 2},
			session.WithReferenceCheck(),
			session.WithWritebackPolicy(stats.WritebackAccumulate),
		)
		Expect(err).NotTo(HaveOccurred())

		var sb strings.Builder
		for i := 0; i < 5000; i++ {
			kind := 0
			if i%3 == 0 {
				kind = 1
			}
			addr := uint64((i*7919)%8192) &^ 3
			fmt.Fprintf(&sb, "# %d %x 2\n", kind, addr)
		}

		Expect(s.Run(trace.NewReader(strings.NewReader(sb.String())))).
			To(Succeed())
		Expect(s.Stats().Accesses).To(Equal(uint64(5000)))
		Expect(s.Stats().Instructions).To(Equal(uint64(10000)))
	})

	It("should process single accesses directly", func() {
		s, err := session.New(cache.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		result, err := s.Access(write(0x20))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Hit).To(BeFalse())

		result, err = s.Access(read(0x24))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Hit).To(BeTrue())

		Expect(s.Stats().Writes).To(Equal(uint64(1)))
		Expect(s.Cache().ResidentTags(2)).To(ConsistOf(uint64(0)))
	})

	It("should report a reference mismatch from a single access", func() {
		s, err := session.New(cache.DefaultConfig(), session.WithReferenceCheck())
		Expect(err).NotTo(HaveOccurred())

		// Touch the cache behind the session so the reference falls behind.
		s.Cache().Probe(cache.Read, 0x40)

		result, err := s.Access(read(0x40))
		Expect(result.Hit).To(BeTrue())

		var mismatch *session.MismatchError
		Expect(errors.As(err, &mismatch)).To(BeTrue())
		Expect(mismatch.Index).To(Equal(uint64(0)))
		Expect(mismatch.Record).To(Equal(read(0x40)))
		Expect(mismatch.Got.Hit).To(BeTrue())
		Expect(mismatch.Reference.Hit).To(BeFalse())
	})
})
