package worker

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/brookhq/brook/pkg/eventstream"
	"github.com/brookhq/brook/pkg/logger"
	"github.com/brookhq/brook/pkg/storage"
	"github.com/brookhq/brook/pkg/storage/inmemory"
)

// capturingPublisher records published events for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.StreamCompletedEvent
}

func (p *capturingPublisher) PublishStreamCompleted(_ context.Context, event *eventstream.StreamCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) published() []*eventstream.StreamCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.StreamCompletedEvent{}, p.events...)
}

// blockingDriver blocks in Save until released, to hold a worker busy.
type blockingDriver struct {
	started chan struct{}
	release chan struct{}
}

func (d *blockingDriver) Save(_ context.Context, _ *storage.Transcript) error {
	d.started <- struct{}{}
	<-d.release
	return nil
}

func (d *blockingDriver) Get(_ context.Context, id string) (*storage.Transcript, error) {
	return nil, storage.ErrNotFound{ID: id}
}

func (d *blockingDriver) List(_ context.Context, _ int) ([]*storage.Transcript, error) {
	return nil, nil
}

func (d *blockingDriver) Close() error { return nil }

func testTranscript(id string) *storage.Transcript {
	return &storage.Transcript{
		ID:         id,
		Endpoint:   "/api/vision-stream",
		Model:      "gpt-4o",
		Prompt:     "describe",
		Reply:      "a cat",
		TokenCount: 2,
		CreatedAt:  time.Now().UTC(),
	}
}

func testEvent(streamID string) *eventstream.StreamCompletedEvent {
	return &eventstream.StreamCompletedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeStreamCompleted,
		EventID:       "evt-" + streamID,
		EmittedAt:     time.Now().UTC(),
		Stream:        eventstream.StreamMeta{StreamID: streamID, Model: "gpt-4o", TokenCount: 2},
	}
}

// newTestPool creates a worker pool backed by an in-memory driver.
// Callers should "wp.Close()" to drain enqueued jobs before asserting
// storage state.
func newTestPool() (*Pool, *inmemory.Driver, *capturingPublisher) {
	driver := inmemory.NewDriver()
	publisher := &capturingPublisher{}

	wp, err := NewPool(&Config{
		Driver:    driver,
		Publisher: publisher,
		Logger:    logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, driver, publisher
}

var _ = Describe("Worker Pool", func() {
	var (
		wp        *Pool
		driver    *inmemory.Driver
		publisher *capturingPublisher
	)

	BeforeEach(func() {
		wp, driver, publisher = newTestPool()
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			ok := wp.Enqueue(Job{
				Transcript: testTranscript("stream-1"),
				Event:      testEvent("stream-1"),
			})
			Expect(ok).To(BeTrue())
			wp.Close()
		})

		It("drops the job and returns false when the queue is full", func() {
			blocking := &blockingDriver{
				started: make(chan struct{}, 1),
				release: make(chan struct{}),
			}
			blocked, err := NewPool(&Config{
				Driver:     blocking,
				NumWorkers: 1,
				QueueSize:  1,
				Logger:     logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			// The single worker takes the first job and blocks in Save.
			Expect(blocked.Enqueue(Job{Transcript: testTranscript("in-flight")})).To(BeTrue())
			Eventually(blocking.started).Should(Receive())

			// Second job fills the queue; the third must be dropped.
			Expect(blocked.Enqueue(Job{Transcript: testTranscript("queued")})).To(BeTrue())
			Expect(blocked.Enqueue(Job{Transcript: testTranscript("dropped")})).To(BeFalse())

			close(blocking.release)
			blocked.Close()
		})
	})

	Describe("Close", func() {
		It("drains queued jobs before returning", func() {
			for _, id := range []string{"a", "b", "c"} {
				Expect(wp.Enqueue(Job{
					Transcript: testTranscript(id),
					Event:      testEvent(id),
				})).To(BeTrue())
			}

			wp.Close()

			transcripts, err := driver.List(GinkgoT().Context(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(transcripts).To(HaveLen(3))
			Expect(publisher.published()).To(HaveLen(3))
		})
	})

	Describe("processJob", func() {
		It("stores a transcript-only job without publishing", func() {
			Expect(wp.Enqueue(Job{Transcript: testTranscript("solo")})).To(BeTrue())
			wp.Close()

			_, err := driver.Get(GinkgoT().Context(), "solo")
			Expect(err).NotTo(HaveOccurred())
			Expect(publisher.published()).To(BeEmpty())
		})

		It("publishes an event-only job without storing", func() {
			Expect(wp.Enqueue(Job{Event: testEvent("evt-only")})).To(BeTrue())
			wp.Close()

			transcripts, err := driver.List(GinkgoT().Context(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(transcripts).To(BeEmpty())
			Expect(publisher.published()).To(HaveLen(1))
		})
	})
})
