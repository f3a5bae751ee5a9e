package nvstore

import "github.com/google/uuid"

// Identity carries the stable device identifier and the per-boot session
// identifier. nv.Init includes it in its "init complete" log line and
// cmd/nvsim logs it once at startup; other log lines and the tests do not
// print it.
type Identity struct {
	DeviceID  uuid.UUID
	SessionID uuid.UUID
}

// NewIdentity builds an Identity, generating a fresh DeviceID if none is
// supplied (an empty uuid.UUID). SessionID is always freshly generated —
// it identifies this particular boot, not the device.
func NewIdentity(deviceID uuid.UUID) Identity {
	if deviceID == uuid.Nil {
		deviceID = uuid.New()
	}
	return Identity{DeviceID: deviceID, SessionID: uuid.New()}
}

func (id Identity) String() string {
	return "device=" + id.DeviceID.String() + " session=" + id.SessionID.String()
}
