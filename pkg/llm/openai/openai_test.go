package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/brookhq/brook/pkg/llm"
	"github.com/brookhq/brook/pkg/llm/openai"
)

// sseChunk shapes one OpenAI streaming chunk.
func sseChunk(content string) string {
	return `data: {"id":"chatcmpl-1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":` + mustJSON(content) + `}}]}` + "\n\n"
}

func mustJSON(s string) string {
	b, err := json.Marshal(s)
	Expect(err).NotTo(HaveOccurred())
	return string(b)
}

var _ = Describe("Client.StreamChat", func() {
	var (
		upstream *httptest.Server
		captured map[string]any
		auth     string
	)

	newUpstream := func(body string, status int) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")

			raw, err := io.ReadAll(r.Body)
			Expect(err).NotTo(HaveOccurred())
			captured = map[string]any{}
			Expect(json.Unmarshal(raw, &captured)).To(Succeed())

			if status != http.StatusOK {
				w.WriteHeader(status)
				io.WriteString(w, body)
				return
			}

			w.Header().Set("Content-Type", "text/event-stream")
			io.WriteString(w, body)
		}))
	}

	AfterEach(func() {
		if upstream != nil {
			upstream.Close()
			upstream = nil
		}
	})

	It("delivers content deltas in order and stops on [DONE]", func() {
		upstream = newUpstream(sseChunk("Hel")+sseChunk("lo")+"data: [DONE]\n\n", http.StatusOK)
		client := openai.NewClient(upstream.URL, "sk-test")

		var deltas []string
		err := client.StreamChat(context.Background(), llm.ChatRequest{
			Model:    "gpt-4o",
			Messages: []llm.Message{llm.NewTextMessage("user", "hi")},
		}, func(delta string) error {
			deltas = append(deltas, delta)
			return nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(deltas).To(Equal([]string{"Hel", "lo"}))
	})

	It("sends a bearer authorization header", func() {
		upstream = newUpstream("data: [DONE]\n\n", http.StatusOK)
		client := openai.NewClient(upstream.URL, "sk-test")

		err := client.StreamChat(context.Background(), llm.ChatRequest{Model: "gpt-4o"}, func(string) error { return nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(auth).To(Equal("Bearer sk-test"))
	})

	It("encodes images as data-URI image_url parts", func() {
		upstream = newUpstream("data: [DONE]\n\n", http.StatusOK)
		client := openai.NewClient(upstream.URL, "sk-test")

		req := llm.ChatRequest{
			Model: "gpt-4o",
			Messages: []llm.Message{{
				Role: "user",
				Content: []llm.ContentBlock{
					{Type: "text", Text: "describe"},
					llm.NewImageBlock("aGVsbG8=", "image/jpg"),
				},
			}},
		}
		err := client.StreamChat(context.Background(), req, func(string) error { return nil })
		Expect(err).NotTo(HaveOccurred())

		messages := captured["messages"].([]any)
		Expect(messages).To(HaveLen(1))
		parts := messages[0].(map[string]any)["content"].([]any)
		Expect(parts).To(HaveLen(2))
		img := parts[1].(map[string]any)
		Expect(img["type"]).To(Equal("image_url"))
		Expect(img["image_url"].(map[string]any)["url"]).To(Equal("data:image/jpeg;base64,aGVsbG8="))
	})

	It("places the system prompt as the first message", func() {
		upstream = newUpstream("data: [DONE]\n\n", http.StatusOK)
		client := openai.NewClient(upstream.URL, "sk-test")

		req := llm.ChatRequest{
			Model:    "gpt-4o",
			System:   "be brief",
			Messages: []llm.Message{llm.NewTextMessage("user", "hi")},
		}
		err := client.StreamChat(context.Background(), req, func(string) error { return nil })
		Expect(err).NotTo(HaveOccurred())

		messages := captured["messages"].([]any)
		Expect(messages).To(HaveLen(2))
		Expect(messages[0].(map[string]any)["role"]).To(Equal("system"))
		Expect(messages[0].(map[string]any)["content"]).To(Equal("be brief"))
	})

	It("returns an APIError with the provider message on non-2xx", func() {
		upstream = newUpstream(`{"error":{"message":"invalid api key","type":"auth"}}`, http.StatusUnauthorized)
		client := openai.NewClient(upstream.URL, "sk-bad")

		err := client.StreamChat(context.Background(), llm.ChatRequest{Model: "gpt-4o"}, func(string) error { return nil })

		var apiErr *openai.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(apiErr.Message).To(Equal("invalid api key"))
	})

	It("propagates onDelta errors unchanged", func() {
		upstream = newUpstream(sseChunk("Hel")+sseChunk("lo")+"data: [DONE]\n\n", http.StatusOK)
		client := openai.NewClient(upstream.URL, "sk-test")

		boom := errors.New("downstream gone")
		err := client.StreamChat(context.Background(), llm.ChatRequest{Model: "gpt-4o"}, func(string) error {
			return boom
		})

		Expect(err).To(MatchError(boom))
	})

	It("skips unparseable chunks and continues", func() {
		body := "data: not json at all\n\n" + sseChunk("ok") + "data: [DONE]\n\n"
		upstream = newUpstream(body, http.StatusOK)
		client := openai.NewClient(upstream.URL, "sk-test")

		var deltas []string
		err := client.StreamChat(context.Background(), llm.ChatRequest{Model: "gpt-4o"}, func(delta string) error {
			deltas = append(deltas, delta)
			return nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(deltas).To(Equal([]string{"ok"}))
	})

	It("treats upstream close without [DONE] as completion", func() {
		upstream = newUpstream(sseChunk("partial"), http.StatusOK)
		client := openai.NewClient(upstream.URL, "sk-test")

		var deltas []string
		err := client.StreamChat(context.Background(), llm.ChatRequest{Model: "gpt-4o"}, func(delta string) error {
			deltas = append(deltas, delta)
			return nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(deltas).To(Equal([]string{"partial"}))
	})

	It("returns the context error when cancelled before the call", func() {
		upstream = newUpstream("data: [DONE]\n\n", http.StatusOK)
		client := openai.NewClient(upstream.URL, "sk-test")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := client.StreamChat(ctx, llm.ChatRequest{Model: "gpt-4o"}, func(string) error { return nil })
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	})
})
