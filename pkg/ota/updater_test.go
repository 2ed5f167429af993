package ota_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/deskbuddy/firmware-command/mocks"
	"github.com/deskbuddy/firmware-command/pkg/firmware"
	"github.com/deskbuddy/firmware-command/pkg/ota"
)

var _ = Describe("Updater", func() {
	var (
		ctrl    *gomock.Controller
		device  *mocks.MockDevice
		key     firmware.Key
		signed  []byte
		updater *ota.Updater
	)

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		device = mocks.NewMockDevice(ctrl)

		var err error
		key, err = firmware.GenerateKey(rand.Reader)
		Expect(err).NotTo(HaveOccurred())

		payload := make([]byte, 4096)
		_, err = rand.Read(payload)
		Expect(err).NotTo(HaveOccurred())
		signed = firmware.Sign(key, payload)

		updater = &ota.Updater{
			Device:       device,
			Key:          key,
			PollInterval: time.Millisecond,
		}
		DeferCleanup(ctrl.Finish)
	})

	It("verifies, uploads, and waits for success", func() {
		var uploaded []byte
		device.EXPECT().Upload(gomock.Any(), gomock.Any(), int64(len(signed))).DoAndReturn(
			func(_ context.Context, image io.Reader, _ int64) error {
				var err error
				uploaded, err = io.ReadAll(image)
				return err
			})
		gomock.InOrder(
			device.EXPECT().Status(gomock.Any()).Return(&ota.Status{State: ota.StateInstalling, Progress: 60}, nil),
			device.EXPECT().Status(gomock.Any()).Return(&ota.Status{State: ota.StateSuccess, Progress: 100}, nil),
		)

		err := updater.Install(context.Background(), bytes.NewReader(signed))
		Expect(err).NotTo(HaveOccurred())
		Expect(uploaded).To(Equal(signed))
	})

	It("refuses to upload a tampered image", func() {
		signed[10] ^= 1
		err := updater.Install(context.Background(), bytes.NewReader(signed))
		Expect(errors.Is(err, firmware.ErrSignatureInvalid)).To(BeTrue())
		// No Upload expectation registered: transmission must not happen.
	})

	It("refuses to upload an image signed with a different key", func() {
		otherKey, err := firmware.GenerateKey(rand.Reader)
		Expect(err).NotTo(HaveOccurred())
		foreign := firmware.Sign(otherKey, []byte("other fleet's build"))

		err = updater.Install(context.Background(), bytes.NewReader(foreign))
		Expect(errors.Is(err, firmware.ErrSignatureInvalid)).To(BeTrue())
	})

	It("refuses an image shorter than the tag", func() {
		err := updater.Install(context.Background(), bytes.NewReader(signed[:16]))
		Expect(errors.Is(err, firmware.ErrEnvelopeTooShort)).To(BeTrue())
	})

	It("reports device-side rejection as an InstallError", func() {
		device.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		device.EXPECT().Status(gomock.Any()).Return(&ota.Status{
			State: ota.StateError,
			Error: "Signature verification failed",
		}, nil)

		err := updater.Install(context.Background(), bytes.NewReader(signed))
		var installErr *ota.InstallError
		Expect(errors.As(err, &installErr)).To(BeTrue())
		Expect(installErr.Status.Error).To(ContainSubstring("Signature"))
		Expect(errors.Is(err, firmware.ErrSignatureInvalid)).To(BeFalse())
	})

	It("stops polling when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		// A long poll interval keeps the ticker from racing the cancelled
		// context in the polling loop's select.
		updater.PollInterval = time.Hour
		device.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		device.EXPECT().Status(gomock.Any()).DoAndReturn(
			func(context.Context) (*ota.Status, error) {
				cancel()
				return &ota.Status{State: ota.StateInstalling}, nil
			})

		err := updater.Install(ctx, bytes.NewReader(signed))
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	})
})
