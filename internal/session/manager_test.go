package session_test

import (
	"context"
	"time"

	"callbridge.app/bridge/internal/session"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Manager", func() {
	var m *session.Manager

	BeforeEach(func() {
		m = session.NewManager(newMemTranscriptStore(), &countingFinalizer{})
	})

	It("tracks sessions until released", func() {
		s1, _ := m.Open(context.Background())
		s2, _ := m.Open(context.Background())
		Expect(s1.ID()).NotTo(Equal(s2.ID()))
		Expect(m.Count()).To(Equal(2))

		m.Release(s1)
		m.Release(s1)
		Expect(m.Count()).To(Equal(1))
	})

	It("cancels live sessions and waits for them", func() {
		s, ctx := m.Open(context.Background())

		go func() {
			<-ctx.Done()
			_, _ = s.Finalize(context.Background())
			m.Release(s)
		}()

		m.CancelAll(context.Background())

		waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(m.Wait(waitCtx)).To(Succeed())
		Expect(m.Count()).To(BeZero())
		Expect(s.State()).To(Equal(session.StateClosed))
	})

	It("gives up waiting when the deadline passes", func() {
		m.Open(context.Background())

		waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		Expect(m.Wait(waitCtx)).To(MatchError(context.DeadlineExceeded))
	})
})
