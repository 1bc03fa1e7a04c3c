package streamclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// staticTokens is a TokenSource with a fixed token.
type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) SessionToken() (string, error) {
	return s.token, s.err
}

// frameServer emits the given raw SSE blocks (each already terminated
// with \n\n) and records the Authorization header it saw.
func frameServer(blocks []string, auth *string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		Expect(ok).To(BeTrue())

		for _, block := range blocks {
			fmt.Fprint(w, block)
			flusher.Flush()
		}
	}))
}

// recorder captures every callback invocation.
type recorder struct {
	mu        sync.Mutex
	tokens    []string
	jsons     []string
	completes []string
	errs      []error
	malformed []string
}

func (rec *recorder) callbacks() Callbacks {
	return Callbacks{
		OnToken: func(cumulative string) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.tokens = append(rec.tokens, cumulative)
		},
		OnJSON: func(raw json.RawMessage) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.jsons = append(rec.jsons, string(raw))
		},
		OnComplete: func(full string) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.completes = append(rec.completes, full)
		},
		OnError: func(err error) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.errs = append(rec.errs, err)
		},
		OnMalformedFrame: func(data string, _ error) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.malformed = append(rec.malformed, data)
		},
	}
}

func (rec *recorder) snapshot() (tokens, jsons, completes, malformed []string, errs []error) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]string{}, rec.tokens...),
		append([]string{}, rec.jsons...),
		append([]string{}, rec.completes...),
		append([]string{}, rec.malformed...),
		append([]error{}, rec.errs...)
}

var _ = Describe("Client", func() {
	var (
		server *httptest.Server
		rec    *recorder
	)

	BeforeEach(func() {
		rec = &recorder{}
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
			server = nil
		}
	})

	Context("without a session credential", func() {
		It("fails before any network activity", func() {
			c := New("http://127.0.0.1:1", staticTokens{token: ""})

			full, err := c.Stream(GinkgoT().Context(), Request{Message: "hi"}, rec.callbacks())
			Expect(err).To(MatchError(ErrNoSession))
			Expect(full).To(BeEmpty())

			_, _, completes, _, errs := rec.snapshot()
			Expect(completes).To(BeEmpty())
			Expect(errs).To(HaveLen(1))
		})

		It("propagates token source failures", func() {
			c := New("http://127.0.0.1:1", staticTokens{err: errors.New("keychain locked")})

			_, err := c.Stream(GinkgoT().Context(), Request{Message: "hi"}, rec.callbacks())
			Expect(err).To(MatchError(ContainSubstring("keychain locked")))
		})
	})

	Context("with a well-formed stream", func() {
		var auth string

		BeforeEach(func() {
			server = frameServer([]string{
				"data: {\"token\":\"Hel\"}\n\n",
				"data: {\"json\":{\"title\":\"Plan\"}}\n\n",
				"data: {\"token\":\"lo\"}\n\n",
				"data: [DONE]\n\n",
			}, &auth)
		})

		It("accumulates tokens, surfaces the json payload, and completes once", func() {
			c := New(server.URL, staticTokens{token: "tok-1"})

			full, err := c.Stream(GinkgoT().Context(), Request{Message: "hi"}, rec.callbacks())
			Expect(err).NotTo(HaveOccurred())
			Expect(full).To(Equal("Hello"))

			tokens, jsons, completes, _, errs := rec.snapshot()
			// OnToken is cumulative, not per-delta
			Expect(tokens).To(Equal([]string{"Hel", "Hello"}))
			Expect(jsons).To(HaveLen(1))
			Expect(jsons[0]).To(MatchJSON(`{"title":"Plan"}`))
			Expect(completes).To(Equal([]string{"Hello"}))
			Expect(errs).To(BeEmpty())
		})

		It("authenticates with the session token", func() {
			c := New(server.URL, staticTokens{token: "tok-1"})

			_, err := c.Stream(GinkgoT().Context(), Request{Message: "hi"}, rec.callbacks())
			Expect(err).NotTo(HaveOccurred())
			Expect(auth).To(Equal("Bearer tok-1"))
		})
	})

	Context("with malformed frames interleaved", func() {
		BeforeEach(func() {
			server = frameServer([]string{
				"data: {\"token\":\"a\"}\n\n",
				"data: this is not json\n\n",
				"data: {\"unknown\":true}\n\n",
				"data: {\"token\":\"b\"}\n\n",
				"data: [DONE]\n\n",
			}, nil)
		})

		It("skips them and still completes", func() {
			c := New(server.URL, staticTokens{token: "tok-1"})

			full, err := c.Stream(GinkgoT().Context(), Request{Message: "hi"}, rec.callbacks())
			Expect(err).NotTo(HaveOccurred())
			Expect(full).To(Equal("ab"))

			_, _, completes, malformed, errs := rec.snapshot()
			Expect(completes).To(HaveLen(1))
			Expect(errs).To(BeEmpty())
			Expect(malformed).To(ConsistOf("this is not json", `{"unknown":true}`))
		})
	})

	Context("when the relay reports an error frame", func() {
		BeforeEach(func() {
			server = frameServer([]string{
				"data: {\"token\":\"part\"}\n\n",
				"data: {\"error\":\"upstream exploded\"}\n\n",
			}, nil)
		})

		It("fails once without completing", func() {
			c := New(server.URL, staticTokens{token: "tok-1"})

			full, err := c.Stream(GinkgoT().Context(), Request{Message: "hi"}, rec.callbacks())
			Expect(err).To(MatchError(ContainSubstring("upstream exploded")))
			Expect(full).To(BeEmpty())

			_, _, completes, _, errs := rec.snapshot()
			Expect(completes).To(BeEmpty())
			Expect(errs).To(HaveLen(1))
		})
	})

	Context("when the connection drops before [DONE]", func() {
		BeforeEach(func() {
			server = frameServer([]string{
				"data: {\"token\":\"half\"}\n\n",
			}, nil)
		})

		It("reports an error instead of completing", func() {
			c := New(server.URL, staticTokens{token: "tok-1"})

			_, err := c.Stream(GinkgoT().Context(), Request{Message: "hi"}, rec.callbacks())
			Expect(err).To(MatchError(ContainSubstring("without completion")))

			_, _, completes, _, errs := rec.snapshot()
			Expect(completes).To(BeEmpty())
			Expect(errs).To(HaveLen(1))
		})
	})

	Context("when a stream is cancelled mid-flight", func() {
		var release chan struct{}

		BeforeEach(func() {
			release = make(chan struct{})
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				flusher := w.(http.Flusher)

				fmt.Fprint(w, "data: {\"token\":\"first\"}\n\n")
				flusher.Flush()

				select {
				case <-r.Context().Done():
				case <-release:
				}
			}))
		})

		AfterEach(func() {
			close(release)
		})

		It("returns empty text and nil error with neither terminal callback", func() {
			c := New(server.URL, staticTokens{token: "tok-1"})

			firstToken := make(chan struct{})
			cb := rec.callbacks()
			inner := cb.OnToken
			var once sync.Once
			cb.OnToken = func(cumulative string) {
				inner(cumulative)
				once.Do(func() { close(firstToken) })
			}

			type result struct {
				full string
				err  error
			}
			done := make(chan result, 1)
			go func() {
				full, err := c.Stream(GinkgoT().Context(), Request{Message: "hi", StreamID: "stream-1"}, cb)
				done <- result{full, err}
			}()

			Eventually(firstToken).Should(BeClosed())
			Expect(c.ActiveStreams()).To(ContainElement("stream-1"))

			c.CancelStream("stream-1")
			// Cancelling again is a no-op
			c.CancelStream("stream-1")

			var res result
			Eventually(done).Should(Receive(&res))
			Expect(res.err).NotTo(HaveOccurred())
			Expect(res.full).To(BeEmpty())

			_, _, completes, _, errs := rec.snapshot()
			Expect(completes).To(BeEmpty())
			Expect(errs).To(BeEmpty())
			Expect(c.ActiveStreams()).To(BeEmpty())
		})

		It("CancelAllStreams aborts every registered stream", func() {
			c := New(server.URL, staticTokens{token: "tok-1"})

			ids := []string{"stream-a", "stream-b", "stream-c"}

			type result struct {
				full string
				err  error
			}

			started := make(chan struct{}, len(ids))
			done := make(chan result, len(ids))
			recorders := make(map[string]*recorder, len(ids))
			for _, id := range ids {
				streamRec := &recorder{}
				recorders[id] = streamRec

				cb := streamRec.callbacks()
				inner := cb.OnToken
				var once sync.Once
				cb.OnToken = func(cumulative string) {
					inner(cumulative)
					once.Do(func() { started <- struct{}{} })
				}

				go func(id string, cb Callbacks) {
					full, err := c.Stream(GinkgoT().Context(), Request{Message: "hi", StreamID: id}, cb)
					done <- result{full, err}
				}(id, cb)
			}

			for range ids {
				Eventually(started).Should(Receive())
			}
			Expect(c.ActiveStreams()).To(ConsistOf("stream-a", "stream-b", "stream-c"))

			c.CancelAllStreams()
			// Cancelling again with an empty registry is a no-op
			c.CancelAllStreams()

			for range ids {
				var res result
				Eventually(done).Should(Receive(&res))
				Expect(res.err).NotTo(HaveOccurred())
				Expect(res.full).To(BeEmpty())
			}
			Expect(c.ActiveStreams()).To(BeEmpty())

			for _, streamRec := range recorders {
				_, _, completes, _, errs := streamRec.snapshot()
				Expect(completes).To(BeEmpty())
				Expect(errs).To(BeEmpty())
			}
		})
	})

	Context("when the relay rejects the request", func() {
		BeforeEach(func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"error":"unauthorized"}`)
			}))
		})

		It("surfaces the status code", func() {
			c := New(server.URL, staticTokens{token: "expired"})

			_, err := c.Stream(GinkgoT().Context(), Request{Message: "hi"}, rec.callbacks())
			Expect(err).To(MatchError(ContainSubstring("401")))
		})
	})
})
