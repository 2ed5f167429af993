// Package ota pushes signed firmware images to a DeskBuddy device.
//
// The device exposes a small JSON/HTTP update API on its web server. An update
// is a single POST of the signed image (payload with its trailing 32-byte
// HMAC-SHA256 tag); the device streams the body into the inactive partition
// while recomputing the tag, and installs only if the signature checks out.
// Progress and the install outcome are reported by a status endpoint.
//
// [Updater] wraps the raw [Client] and re-verifies an image locally before
// transmission, so that a corrupted or unsigned build is caught on the
// workstation rather than after a lengthy upload.
package ota
