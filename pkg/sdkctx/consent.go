package sdkctx

// TrackingConsent is the user's data-collection consent. It selects the
// partition newly written batches land in and gates uploads.
type TrackingConsent string

const (
	// ConsentGranted allows collection and upload.
	ConsentGranted TrackingConsent = "granted"

	// ConsentNotGranted forbids collection; writes are dropped.
	ConsentNotGranted TrackingConsent = "not_granted"

	// ConsentPending buffers events on disk without uploading until the
	// user decides. This is the initial value.
	ConsentPending TrackingConsent = "pending"
)

// Valid reports whether c is one of the three known consent values.
func (c TrackingConsent) Valid() bool {
	switch c {
	case ConsentGranted, ConsentNotGranted, ConsentPending:
		return true
	}
	return false
}
