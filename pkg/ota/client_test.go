package ota_test

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/deskbuddy/firmware-command/pkg/ota"
)

var _ = Describe("Client", func() {
	var client *ota.Client

	BeforeEach(func() {
		client = ota.NewClient("deskbuddy.local")
		httpmock.ActivateNonDefault(client.HTTP)
		DeferCleanup(httpmock.DeactivateAndReset)
	})

	Describe("Upload", func() {
		It("posts the image body", func() {
			image := []byte("signed firmware bytes")
			var received []byte
			httpmock.RegisterResponder(http.MethodPost, "http://deskbuddy.local/api/ota/update",
				func(r *http.Request) (*http.Response, error) {
					defer r.Body.Close()
					var err error
					received, err = io.ReadAll(r.Body)
					Expect(err).NotTo(HaveOccurred())
					Expect(r.ContentLength).To(Equal(int64(len(image))))
					Expect(r.Header.Get("Content-Type")).To(Equal("application/octet-stream"))
					return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{"state": "Verifying"})
				})

			err := client.Upload(context.Background(), bytes.NewReader(image), int64(len(image)))
			Expect(err).NotTo(HaveOccurred())
			Expect(received).To(Equal(image))
		})

		It("surfaces device errors with their message", func() {
			httpmock.RegisterResponder(http.MethodPost, "http://deskbuddy.local/api/ota/update",
				httpmock.NewJsonResponderOrPanic(http.StatusServiceUnavailable, map[string]interface{}{
					"error": "update already in progress",
				}))

			err := client.Upload(context.Background(), bytes.NewReader(nil), 0)
			var deviceErr *ota.DeviceError
			Expect(err).To(BeAssignableToTypeOf(deviceErr))
			deviceErr = err.(*ota.DeviceError)
			Expect(deviceErr.StatusCode).To(Equal(http.StatusServiceUnavailable))
			Expect(deviceErr.Message).To(Equal("update already in progress"))
		})

		It("tolerates bare-text error bodies", func() {
			httpmock.RegisterResponder(http.MethodPost, "http://deskbuddy.local/api/ota/update",
				httpmock.NewStringResponder(http.StatusBadRequest, "Firmware too large\n"))

			err := client.Upload(context.Background(), bytes.NewReader(nil), 0)
			deviceErr, ok := err.(*ota.DeviceError)
			Expect(ok).To(BeTrue())
			Expect(deviceErr.Message).To(Equal("Firmware too large"))
		})
	})

	Describe("Status", func() {
		It("decodes the device report", func() {
			httpmock.RegisterResponder(http.MethodGet, "http://deskbuddy.local/api/ota/status",
				httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
					"state":     "Installing",
					"progress":  87,
					"received":  1048576,
					"total":     1204224,
					"version":   "1.4.2",
					"partition": "ota_0",
				}))

			status, err := client.Status(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(status.State).To(Equal(ota.StateInstalling))
			Expect(status.Progress).To(Equal(87))
			Expect(status.Version).To(Equal("1.4.2"))
			Expect(status.Terminal()).To(BeFalse())
		})

		It("rejects malformed responses", func() {
			httpmock.RegisterResponder(http.MethodGet, "http://deskbuddy.local/api/ota/status",
				httpmock.NewStringResponder(http.StatusOK, "not json"))

			_, err := client.Status(context.Background())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Rollback", func() {
		It("posts to the rollback endpoint", func() {
			httpmock.RegisterResponder(http.MethodPost, "http://deskbuddy.local/api/ota/rollback",
				httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{}))

			Expect(client.Rollback(context.Background())).To(Succeed())
			Expect(httpmock.GetTotalCallCount()).To(Equal(1))
		})
	})

	It("accepts addresses with an explicit scheme", func() {
		client = ota.NewClient("http://10.0.0.7:8080")
		httpmock.ActivateNonDefault(client.HTTP)
		httpmock.RegisterResponder(http.MethodGet, "http://10.0.0.7:8080/api/ota/status",
			httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{"state": "Idle"}))

		status, err := client.Status(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(status.State).To(Equal(ota.StateIdle))
	})
})
