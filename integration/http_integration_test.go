package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// getBaseURL returns the base URL for API calls.
// Uses DOSQ_BASE_URL env var if set (for container tests),
// otherwise defaults to localhost:8080.
func getBaseURL() string {
	if url := os.Getenv("DOSQ_BASE_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

// httpClient creates an HTTP client with sensible defaults.
func httpClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
	}
}

// doRequest performs an HTTP request with a raw body.
func doRequest(method, path string, body []byte) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, getBaseURL()+path, bodyReader)
	if err != nil {
		return nil, err
	}
	return httpClient().Do(req)
}

// parseResponse parses JSON response into target.
func parseResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

var _ = Describe("HTTP API", Ordered, func() {
	BeforeAll(func() {
		// Check if the server is reachable
		resp, err := doRequest(http.MethodGet, "/healthz", nil)
		if err != nil {
			Skip(fmt.Sprintf("Server not reachable at %s: %v", getBaseURL(), err))
		}
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	Describe("Health checks", func() {
		It("reports the service as alive", func() {
			resp, err := doRequest(http.MethodGet, "/healthz", nil)
			Expect(err).NotTo(HaveOccurred())

			var result map[string]string
			Expect(parseResponse(resp, &result)).To(Succeed())
			Expect(result["status"]).To(Equal("ok"))
			Expect(result["version"]).NotTo(BeEmpty())
		})

		It("reports queue connectivity without a server error", func() {
			resp, err := doRequest(http.MethodGet, "/healthz/queue", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(BeElementOf(http.StatusOK, http.StatusServiceUnavailable))
		})
	})

	Describe("Messages API", func() {
		It("accepts a message and returns its id", func() {
			resp, err := doRequest(http.MethodPost, "/v1/messages", []byte(`{"task":1}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			var result struct {
				Success bool              `json:"success"`
				Data    map[string]string `json:"data"`
			}
			Expect(parseResponse(resp, &result)).To(Succeed())
			Expect(result.Success).To(BeTrue())
			Expect(result.Data["id"]).NotTo(BeEmpty())
		})

		It("rejects an empty body", func() {
			resp, err := doRequest(http.MethodPost, "/v1/messages", []byte{})
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})
})
