package proxy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/azrelay/pkg/eventstream"
)

// sseUpstream serves the given raw SSE events, flushing after each one.
func sseUpstream(events []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		flusher, ok := w.(http.Flusher)
		Expect(ok).To(BeTrue())

		for _, event := range events {
			fmt.Fprint(w, event)
			flusher.Flush()
		}
	}))
}

var azureEvents = []string{
	"data: {\"id\":\"\",\"object\":\"\",\"created\":0,\"model\":\"\",\"prompt_filter_results\":[{\"prompt_index\":0}],\"choices\":[]}\n\n",
	"data: {\"id\":\"chatcmpl-1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"Hel\"}}]}\n\n",
	"data: {\"id\":\"chatcmpl-1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"}}]}\n\n",
	"data: [DONE]\n\n",
}

var _ = Describe("Streaming Gateway", func() {
	var (
		p        *Proxy
		pub      *recordingPublisher
		upstream *httptest.Server
	)

	AfterEach(func() {
		if p != nil {
			p.Close()
		}
		if upstream != nil {
			upstream.Close()
		}
	})

	Context("in passthrough mode", func() {
		BeforeEach(func() {
			upstream = sseUpstream(azureEvents)
			p, pub = newTestProxy(upstream.URL, false)
		})

		It("sets the event stream headers", func() {
			status, headers, _ := doRequest(p, chatRequest(chatBody("gpt-4", true)))
			Expect(status).To(Equal(http.StatusOK))
			Expect(headers.Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(headers.Get("Cache-Control")).To(Equal("no-cache"))
		})

		It("forwards every upstream line as its own frame", func() {
			_, _, body := doRequest(p, chatRequest(chatBody("gpt-4", true)))

			var expected strings.Builder
			for _, event := range azureEvents {
				expected.WriteString(strings.TrimSuffix(event, "\n\n") + "\n\n")
			}
			Expect(body).To(Equal(expected.String()))
		})

		It("records the stream in metrics and events", func() {
			doRequest(p, chatRequest(chatBody("gpt-4", true)))
			p.Close()

			count, err := testutil.GatherAndCount(p.metrics.Registry(), "azrelay_stream_frames_total")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))

			events := pub.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].RequestMeta.Streaming).To(BeTrue())
			Expect(events[0].RequestMeta.Compat).To(BeFalse())
			Expect(events[0].Stream).NotTo(BeNil())
			Expect(events[0].Stream.Frames).To(Equal(len(azureEvents)))
		})
	})

	Context("in compat mode", func() {
		BeforeEach(func() {
			upstream = sseUpstream(azureEvents)
			p, pub = newTestProxy(upstream.URL, true)
		})

		It("rewrites chunks and terminates the stream", func() {
			status, _, body := doRequest(p, chatRequest(chatBody("gpt-4o", true)))
			Expect(status).To(Equal(http.StatusOK))

			frames := strings.Split(body, "\n\n")
			Expect(frames).To(HaveLen(4))
			Expect(frames[0]).To(ContainSubstring(`"delta":{"content":"Hel"}`))
			Expect(frames[0]).To(ContainSubstring(`"finish_reason":null`))
			Expect(frames[0]).To(ContainSubstring(`"model":"gpt-4o"`))
			Expect(frames[1]).To(ContainSubstring(`"delta":{"content":"lo"}`))
			Expect(frames[2]).To(ContainSubstring(`"delta":{"content":""}`))
			Expect(frames[2]).To(ContainSubstring(`"finish_reason":"stop"`))
			Expect(frames[3]).To(Equal("data: [DONE]"))
		})

		It("reports dropped lines on the completion event", func() {
			doRequest(p, chatRequest(chatBody("gpt-4", true)))
			p.Close()

			events := pub.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].RequestMeta.Compat).To(BeTrue())
			Expect(events[0].Stream.Frames).To(Equal(4))
			Expect(events[0].Stream.LinesDropped).To(Equal(2))
		})
	})

	Context("when the first upstream line is a filter rejection", func() {
		BeforeEach(func() {
			upstream = sseUpstream([]string{
				"data: {\"error\":{\"code\":\"content_filter\",\"message\":\"filtered\"}}\n\n",
			})
			p, pub = newTestProxy(upstream.URL, true)
		})

		It("answers with a 400 before committing the stream", func() {
			status, headers, body := doRequest(p, chatRequest(chatBody("gpt-4", true)))
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(headers.Get("Content-Type")).To(HavePrefix("application/json"))
			Expect(body).To(MatchJSON(errorBody("You have probably hit a filter")))

			expected := `
# HELP azrelay_stream_filtered_total Total number of streams stopped by the content filter check
# TYPE azrelay_stream_filtered_total counter
azrelay_stream_filtered_total 1
`
			Expect(testutil.GatherAndCompare(p.Metrics().Registry(), strings.NewReader(expected),
				"azrelay_stream_filtered_total")).To(Succeed())
		})
	})

	Context("when a later upstream line is a filter rejection", func() {
		BeforeEach(func() {
			upstream = sseUpstream([]string{
				"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n",
				"data: {\"error\":{\"code\":\"content_filter\"}}\n\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n",
			})
			p, pub = newTestProxy(upstream.URL, true)
		})

		It("ends the stream with an error frame", func() {
			status, _, body := doRequest(p, chatRequest(chatBody("gpt-4", true)))
			Expect(status).To(Equal(http.StatusOK))

			Expect(body).To(ContainSubstring(`"content":"Hel"`))
			Expect(body).To(HaveSuffix("data: {\"error\":\"You have probably hit a filter\"}\n\n"))
			Expect(body).NotTo(ContainSubstring(`"content":"lo"`))
			Expect(body).NotTo(ContainSubstring("[DONE]"))

			p.Close()
			events := pub.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].ErrorKind).To(Equal(eventstream.ErrorKindFiltered))
		})
	})

	Context("when the upstream sends a line larger than a megabyte", func() {
		var long string

		BeforeEach(func() {
			long = "data: {\"choices\":[{\"delta\":{\"content\":\"" + strings.Repeat("x", 1100*1024) + "\"}}]}"
			upstream = sseUpstream([]string{long + "\n\n", "data: [DONE]\n\n"})
			p, pub = newTestProxy(upstream.URL, false)
		})

		It("relays it as a single frame", func() {
			status, _, body := doRequest(p, chatRequest(chatBody("gpt-4", true)))
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(Equal(long + "\n\ndata: [DONE]\n\n"))

			expected := `
# HELP azrelay_stream_filtered_total Total number of streams stopped by the content filter check
# TYPE azrelay_stream_filtered_total counter
azrelay_stream_filtered_total 0
`
			Expect(testutil.GatherAndCompare(p.Metrics().Registry(), strings.NewReader(expected),
				"azrelay_stream_filtered_total")).To(Succeed())
		})
	})

	Context("when the upstream stream breaks before the first line", func() {
		BeforeEach(func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hj, ok := w.(http.Hijacker)
				Expect(ok).To(BeTrue())
				conn, buf, err := hj.Hijack()
				Expect(err).NotTo(HaveOccurred())
				defer conn.Close()

				// Announce a 255 byte chunk and hang up after a few bytes of it.
				fmt.Fprint(buf, "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nTransfer-Encoding: chunked\r\n\r\n")
				fmt.Fprint(buf, "ff\r\ndata: {\"cho")
				Expect(buf.Flush()).To(Succeed())
			}))
			p, pub = newTestProxy(upstream.URL, true)
		})

		It("answers with a 502 instead of a filter rejection", func() {
			status, _, body := doRequest(p, chatRequest(chatBody("gpt-4", true)))
			Expect(status).To(Equal(http.StatusBadGateway))

			var got map[string]string
			Expect(json.Unmarshal([]byte(body), &got)).To(Succeed())
			Expect(got["error"]).To(HavePrefix("An unexpected error occurred: "))

			expected := `
# HELP azrelay_stream_filtered_total Total number of streams stopped by the content filter check
# TYPE azrelay_stream_filtered_total counter
azrelay_stream_filtered_total 0
`
			Expect(testutil.GatherAndCompare(p.Metrics().Registry(), strings.NewReader(expected),
				"azrelay_stream_filtered_total")).To(Succeed())

			p.Close()
			events := pub.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].ErrorKind).To(Equal(eventstream.ErrorKindUpstream))
			Expect(events[0].RequestMeta.HTTPStatus).To(Equal(http.StatusBadGateway))
		})
	})

	Context("when the upstream rejects a streaming call", func() {
		BeforeEach(func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			}))
			p, pub = newTestProxy(upstream.URL, false)
		})

		It("answers with the mapped JSON error", func() {
			status, _, body := doRequest(p, chatRequest(chatBody("gpt-4", true)))
			Expect(status).To(Equal(http.StatusTooManyRequests))
			Expect(body).To(MatchJSON(errorBody("The current quota has been exceeded.")))
		})
	})

	Context("when the upstream sends an empty stream", func() {
		BeforeEach(func() {
			upstream = sseUpstream(nil)
			p, pub = newTestProxy(upstream.URL, true)
		})

		It("still terminates a compat stream", func() {
			status, _, body := doRequest(p, chatRequest(chatBody("gpt-4", true)))
			Expect(status).To(Equal(http.StatusOK))

			frames := strings.Split(body, "\n\n")
			Expect(frames).To(HaveLen(2))
			Expect(frames[0]).To(ContainSubstring(`"finish_reason":"stop"`))
			Expect(frames[1]).To(Equal("data: [DONE]"))
		})
	})

	Context("when the client disconnects mid-stream", func() {
		var upstreamDone chan struct{}

		BeforeEach(func() {
			upstreamDone = make(chan struct{})
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				defer close(upstreamDone)
				w.Header().Set("Content-Type", "text/event-stream")
				flusher := w.(http.Flusher)

				ticker := time.NewTicker(5 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-r.Context().Done():
						return
					case <-ticker.C:
						fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"tick\"}}]}\n\n")
						flusher.Flush()
					}
				}
			}))
			p, pub = newTestProxy(upstream.URL, false)
		})

		It("cancels the upstream call", func() {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			go func() {
				_ = p.RunWithListener(ln)
			}()

			req, err := http.NewRequest(http.MethodPost, "http://"+ln.Addr().String()+RouteChatCompletions,
				strings.NewReader(chatBody("gpt-4", true)))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Bearer sk-test")

			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			line, err := bufio.NewReader(resp.Body).ReadString('\n')
			Expect(err).NotTo(HaveOccurred())
			Expect(line).To(HavePrefix("data: "))

			Expect(resp.Body.Close()).To(Succeed())

			Eventually(upstreamDone, 5*time.Second).Should(BeClosed())
		})
	})
})
