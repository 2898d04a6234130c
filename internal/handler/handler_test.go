package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/raccoon-warez/cipherwave-relay/internal/handler"
	"github.com/raccoon-warez/cipherwave-relay/internal/loadbalancer"
	"github.com/raccoon-warez/cipherwave-relay/internal/metrics"
	"github.com/raccoon-warez/cipherwave-relay/internal/strategy"
)

func TestHandler(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Handler Suite")
}

func mustParseURL(rawURL string) *url.URL {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return u
}

// abortingWriter fails every body write, the way a client that went away
// mid-stream does.
type abortingWriter struct {
	http.ResponseWriter
}

func (w *abortingWriter) Write([]byte) (int, error) {
	return 0, errors.New("client went away")
}

var _ = Describe("ProxyHandler", func() {
	var (
		log       *slog.Logger
		lb        *loadbalancer.Balancer
		collector *metrics.Collector
		h         *handler.ProxyHandler
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, nil))
		lb = loadbalancer.New(strategy.NewRoundRobin(), log)
		collector = metrics.NewCollector(100, log)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		collector.Start(ctx)

		h = handler.NewProxyHandler(log, lb, collector)
	})

	AfterEach(func() {
		cancel()
	})

	It("should proxy the request to a backend", func() {
		origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("pong"))
		}))
		defer origin.Close()

		_, err := lb.AddBackend("node-1", mustParseURL(origin.URL), 1)
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(Equal("pong"))
	})

	It("should add the forwarding headers", func() {
		var forwardedFor, balancerHeader string
		origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			forwardedFor = r.Header.Get("X-Forwarded-For")
			balancerHeader = r.Header.Get("X-Load-Balancer")
		}))
		defer origin.Close()

		lb.AddBackend("node-1", mustParseURL(origin.URL), 1)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		h.ServeHTTP(httptest.NewRecorder(), req)

		Expect(forwardedFor).To(ContainSubstring("192.0.2.10"))
		Expect(balancerHeader).To(Equal("cipherwave-lb"))
	})

	It("should answer 503 with a JSON body when no backend is healthy", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))
		Expect(w.Body.String()).To(ContainSubstring("No healthy server available"))
	})

	It("should release the connection reservation after the round-trip", func() {
		origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer origin.Close()

		b, _ := lb.AddBackend("node-1", mustParseURL(origin.URL), 1)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		h.ServeHTTP(httptest.NewRecorder(), req)

		Expect(b.ActiveConnections()).To(Equal(0))
		Expect(b.Stats().TotalConnections).To(Equal(int64(1)))
	})

	It("should release the reservation when the response stream aborts", func() {
		origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("partial body"))
		}))
		defer origin.Close()

		b, _ := lb.AddBackend("node-1", mustParseURL(origin.URL), 1)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.10:1234"

		// The reverse proxy aborts the request when the client write
		// fails; the panic must not leak the reservation.
		func() {
			defer func() {
				Expect(recover()).NotTo(BeNil())
			}()
			h.ServeHTTP(&abortingWriter{ResponseWriter: httptest.NewRecorder()}, req)
		}()

		Expect(b.ActiveConnections()).To(Equal(0))
		Expect(b.Stats().TotalConnections).To(Equal(int64(1)))
	})

	It("should count a transport failure against the backend and answer 503", func() {
		b, _ := lb.AddBackend("node-1", mustParseURL("http://127.0.0.1:1"), 1)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(b.Stats().ErrorCount).To(Equal(1))
		Expect(b.Stats().LastError).NotTo(BeEmpty())
		Expect(b.ActiveConnections()).To(Equal(0))
	})

	Context("WebSocket upgrades", func() {
		It("should proxy an upgrade end-to-end and relay frames", func() {
			upgrader := websocket.Upgrader{}
			origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				conn, err := upgrader.Upgrade(w, r, nil)
				if err != nil {
					return
				}
				defer conn.Close()
				for {
					mt, msg, err := conn.ReadMessage()
					if err != nil {
						return
					}
					if err := conn.WriteMessage(mt, msg); err != nil {
						return
					}
				}
			}))
			defer origin.Close()

			b, err := lb.AddBackend("node-1", mustParseURL(origin.URL), 1)
			Expect(err).NotTo(HaveOccurred())

			front := httptest.NewServer(h)
			defer front.Close()

			wsURL := "ws" + strings.TrimPrefix(front.URL, "http") + "/ws?room=r1"
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()

			frame := `{"type":"offer","sdp":"v=0"}`
			Expect(conn.WriteMessage(websocket.TextMessage, []byte(frame))).To(Succeed())

			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, echoed, err := conn.ReadMessage()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(echoed)).To(Equal(frame))

			conn.Close()
			Eventually(b.ActiveConnections).Should(Equal(0))
		})
	})

	Context("room affinity", func() {
		It("should send both peers of a room to the same backend", func() {
			hits := make(map[string]int)

			newOrigin := func(name string) *httptest.Server {
				return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					hits[name]++
				}))
			}

			origin1 := newOrigin("node-1")
			defer origin1.Close()
			origin2 := newOrigin("node-2")
			defer origin2.Close()

			lb.AddBackend("node-1", mustParseURL(origin1.URL), 1)
			lb.AddBackend("node-2", mustParseURL(origin2.URL), 1)

			for i := 0; i < 6; i++ {
				req := httptest.NewRequest(http.MethodGet, "/ws?room=r1", nil)
				req.RemoteAddr = "192.0.2.10:1234"
				h.ServeHTTP(httptest.NewRecorder(), req)
			}

			// All six requests for the room land on one backend.
			Expect(hits).To(HaveLen(1))
			for _, count := range hits {
				Expect(count).To(Equal(6))
			}
		})
	})
})

var _ = Describe("AdminHandler", func() {
	var (
		log *slog.Logger
		lb  *loadbalancer.Balancer
		srv *httptest.Server
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, nil))
		lb = loadbalancer.New(strategy.NewRoundRobin(), log)

		mux := http.NewServeMux()
		handler.NewAdminHandler(log, lb).Register(mux)
		srv = httptest.NewServer(mux)
	})

	AfterEach(func() {
		srv.Close()
	})

	do := func(method, path, body string) *http.Response {
		var req *http.Request
		if body != "" {
			req, _ = http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		} else {
			req, _ = http.NewRequest(method, srv.URL+path, nil)
		}
		res, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	It("should add a server", func() {
		res := do("POST", "/admin/servers", `{"id":"node-1","url":"http://localhost:9001","weight":1}`)
		defer res.Body.Close()

		Expect(res.StatusCode).To(Equal(http.StatusCreated))
		Expect(lb.Backends()).To(HaveLen(1))
	})

	It("should reject an invalid add request", func() {
		res := do("POST", "/admin/servers", `{"id":"","url":"not a url","weight":0}`)
		defer res.Body.Close()

		Expect(res.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("should reject a duplicate id", func() {
		do("POST", "/admin/servers", `{"id":"node-1","url":"http://localhost:9001","weight":1}`).Body.Close()
		res := do("POST", "/admin/servers", `{"id":"node-1","url":"http://localhost:9002","weight":1}`)
		defer res.Body.Close()

		Expect(res.StatusCode).To(Equal(http.StatusConflict))
	})

	It("should remove a server", func() {
		do("POST", "/admin/servers", `{"id":"node-1","url":"http://localhost:9001","weight":1}`).Body.Close()

		res := do("DELETE", "/admin/servers/node-1", "")
		defer res.Body.Close()

		Expect(res.StatusCode).To(Equal(http.StatusNoContent))
		Expect(lb.Backends()).To(BeEmpty())
	})

	It("should 404 removing an unknown server", func() {
		res := do("DELETE", "/admin/servers/ghost", "")
		defer res.Body.Close()

		Expect(res.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("should drain a server", func() {
		do("POST", "/admin/servers", `{"id":"node-1","url":"http://localhost:9001","weight":1}`).Body.Close()

		res := do("POST", "/admin/servers/node-1/drain", "")
		defer res.Body.Close()

		Expect(res.StatusCode).To(Equal(http.StatusOK))

		b, ok := lb.Backend("node-1")
		Expect(ok).To(BeTrue())
		Expect(b.IsDraining()).To(BeTrue())
	})

	It("should apply a partial update", func() {
		do("POST", "/admin/servers", `{"id":"node-1","url":"http://localhost:9001","weight":1}`).Body.Close()

		res := do("PATCH", "/admin/servers/node-1", `{"weight":5}`)
		defer res.Body.Close()

		Expect(res.StatusCode).To(Equal(http.StatusOK))

		b, _ := lb.Backend("node-1")
		Expect(b.Weight()).To(Equal(5))
		Expect(b.URL().String()).To(Equal("http://localhost:9001"))
	})

	It("should serve the pool stats", func() {
		do("POST", "/admin/servers", `{"id":"node-1","url":"http://localhost:9001","weight":1}`).Body.Close()

		res := do("GET", "/admin/stats", "")
		defer res.Body.Close()

		Expect(res.StatusCode).To(Equal(http.StatusOK))

		var stats loadbalancer.Stats
		Expect(json.NewDecoder(res.Body).Decode(&stats)).To(Succeed())
		Expect(stats.TotalServers).To(Equal(1))
		Expect(stats.HealthyServers).To(Equal(1))
		Expect(stats.Servers).To(HaveLen(1))
	})
})
