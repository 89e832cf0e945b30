package proxy

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	azlogger "github.com/papercomputeco/azrelay/pkg/logger"
)

var _ = Describe("Non-threaded gateway", func() {
	var (
		p        *Proxy
		upstream *httptest.Server
		addr     string
		inFlight atomic.Int32
		peak     atomic.Int32
	)

	BeforeEach(func() {
		inFlight.Store(0)
		peak.Store(0)

		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			n := inFlight.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(150 * time.Millisecond)
			inFlight.Add(-1)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))

		var err error
		p, err = New(Config{
			ListenAddr: ":0",
			BaseURL:    upstream.URL,
			Threaded:   false,
		}, &recordingPublisher{}, azlogger.Nop())
		Expect(err).NotTo(HaveOccurred())

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr = "http://" + ln.Addr().String()
		go func() {
			_ = p.RunWithListener(ln)
		}()
	})

	AfterEach(func() {
		p.Close()
		upstream.Close()
	})

	post := func(client *http.Client) int {
		req, err := http.NewRequest(http.MethodPost, addr+RouteChatCompletions,
			strings.NewReader(chatBody("gpt-4", false)))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Authorization", "Bearer sk-test")

		resp, err := client.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		return resp.StatusCode
	}

	It("queues overlapping requests instead of rejecting them", func() {
		statuses := make([]int, 2)
		var wg sync.WaitGroup
		for i := range statuses {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				statuses[i] = post(&http.Client{Transport: &http.Transport{}})
			}()
		}
		wg.Wait()

		Expect(statuses).To(Equal([]int{http.StatusOK, http.StatusOK}))
		Expect(peak.Load()).To(Equal(int32(1)))
	})

	It("serves a new client while another holds an idle keep-alive connection", func() {
		first := &http.Client{Transport: &http.Transport{}}
		Expect(post(first)).To(Equal(http.StatusOK))

		second := &http.Client{Transport: &http.Transport{}}
		Expect(post(second)).To(Equal(http.StatusOK))
	})
})
