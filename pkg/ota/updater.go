package ota

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/deskbuddy/firmware-command/internal/log"
	"github.com/deskbuddy/firmware-command/pkg/firmware"
)

//go:generate mockgen -destination=../../mocks/ota.go -package=mocks github.com/deskbuddy/firmware-command/pkg/ota Device

// Device is the subset of the update API the Updater needs. *Client implements
// it.
type Device interface {
	Upload(ctx context.Context, image io.Reader, size int64) error
	Status(ctx context.Context) (*Status, error)
	Rollback(ctx context.Context) error
}

// An InstallError is reported when the device accepted an upload but refused
// to install it, most commonly because the device holds a different signing
// key than the workstation.
type InstallError struct {
	Status *Status
}

func (e *InstallError) Error() string {
	if e.Status.Error == "" {
		return "device rejected firmware"
	}
	return fmt.Sprintf("device rejected firmware: %s", e.Status.Error)
}

// Updater installs signed firmware on a device.
type Updater struct {
	Device Device
	// Key is used to re-verify the image locally before transmission.
	Key firmware.Key
	// PollInterval is the delay between status polls after upload. Zero means
	// one second.
	PollInterval time.Duration
}

// Install verifies the signed image locally, uploads it, and waits for the
// device to finish installing.
//
// Local verification streams the image through a [firmware.StreamVerifier], so
// arbitrarily large builds are checked without buffering. A locally rejected
// image is never transmitted; the caller gets firmware.ErrSignatureInvalid (or
// firmware.ErrEnvelopeTooShort) exactly as the device's verifier would report
// it. A device-side rejection after upload surfaces as an *InstallError.
func (u *Updater) Install(ctx context.Context, image io.ReadSeeker) error {
	verifier := firmware.NewStreamVerifier(u.Key)
	size, err := io.Copy(verifier, image)
	if err != nil {
		return fmt.Errorf("could not read image: %w", err)
	}
	if err := verifier.Verify(); err != nil {
		return err
	}
	log.Info("Image verified locally: %d payload bytes", verifier.PayloadSize())

	if _, err := image.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("could not rewind image: %w", err)
	}
	if err := u.Device.Upload(ctx, image, size); err != nil {
		return err
	}
	log.Info("Upload complete, waiting for device")
	return u.waitForInstall(ctx)
}

func (u *Updater) waitForInstall(ctx context.Context) error {
	interval := u.PollInterval
	if interval == 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status, err := u.Device.Status(ctx)
		if err != nil {
			return err
		}
		log.Debug("Device state %s (%d%%)", status.State, status.Progress)
		if status.State == StateError {
			return &InstallError{Status: status}
		}
		if status.State == StateSuccess {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
