package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/azrelay/pkg/eventstream"
	"github.com/papercomputeco/azrelay/pkg/eventstream/kafka"
)

type fakeWriter struct {
	messages []kafkago.Message
	deadline bool
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		w *fakeWriter
		p *kafka.Publisher
	)

	BeforeEach(func() {
		w = &fakeWriter{}
		p = kafka.NewPublisherWithWriter(w, time.Second)
	})

	It("writes one JSON message keyed by request id", func() {
		event := eventstream.NewCompletionEvent(eventstream.RequestMeta{
			RequestID: "req-42",
			Model:     "gpt-4",
		}, time.Unix(1735689600, 0).UTC())

		Expect(p.PublishCompletion(context.Background(), event)).To(Succeed())

		Expect(w.messages).To(HaveLen(1))
		Expect(string(w.messages[0].Key)).To(Equal("req-42"))
		Expect(w.deadline).To(BeTrue())

		var got eventstream.CompletionEvent
		Expect(json.Unmarshal(w.messages[0].Value, &got)).To(Succeed())
		Expect(got.EventID).To(Equal(event.EventID))
		Expect(got.RequestMeta.Model).To(Equal("gpt-4"))
	})

	It("rejects nil events", func() {
		Expect(p.PublishCompletion(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
		Expect(w.messages).To(BeEmpty())
	})

	It("wraps writer errors", func() {
		w.err = errors.New("broker unavailable")
		event := eventstream.NewCompletionEvent(eventstream.RequestMeta{RequestID: "r"}, time.Now())

		err := p.PublishCompletion(context.Background(), event)
		Expect(err).To(MatchError(ContainSubstring("broker unavailable")))
		Expect(errors.Is(err, w.err)).To(BeTrue())
	})

	It("closes the writer", func() {
		Expect(p.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})

	Describe("NewPublisher", func() {
		It("requires a broker", func() {
			_, err := kafka.NewPublisher(kafka.Config{Brokers: []string{" ", ""}, Topic: "t"})
			Expect(err).To(MatchError(kafka.ErrNoBrokers))
		})

		It("requires a topic", func() {
			_, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}})
			Expect(err).To(HaveOccurred())
		})

		It("builds a publisher without connecting", func() {
			pub, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}, Topic: "azrelay.completions"})
			Expect(err).NotTo(HaveOccurred())
			Expect(pub.Close()).To(Succeed())
		})
	})
})
