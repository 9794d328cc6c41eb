package authorization

import (
	"encoding/binary"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// BuildHidden computes the hidden authorization set binding a blob to the
// calling application and the device boot state. The set is never
// persisted; it is rebuilt on every operation and fed into authenticated
// encryption, so create-time and use-time inputs must match byte for
// byte.
//
// Entry order is part of the binding contract: application id,
// application data (each only if present), then three root-of-trust
// entries holding the verified boot key, the boot state, and the
// device-locked flag.
func BuildHidden(params *interfaces.Set, rot interfaces.RootOfTrust) (*interfaces.Set, error) {
	hidden := interfaces.NewSet()

	if appID, ok := params.GetBlob(interfaces.TagApplicationID); ok {
		hidden.Add(interfaces.BlobParam(interfaces.TagApplicationID, appID))
	}
	if appData, ok := params.GetBlob(interfaces.TagApplicationData); ok {
		hidden.Add(interfaces.BlobParam(interfaces.TagApplicationData, appData))
	}

	hidden.Add(interfaces.BlobParam(interfaces.TagRootOfTrust, rot.VerifiedBootKey))

	state := make([]byte, 4)
	binary.LittleEndian.PutUint32(state, uint32(rot.VerifiedBootState))
	hidden.Add(interfaces.BlobParam(interfaces.TagRootOfTrust, state))

	locked := []byte{0}
	if rot.DeviceLocked {
		locked[0] = 1
	}
	hidden.Add(interfaces.BlobParam(interfaces.TagRootOfTrust, locked))

	if err := hidden.Validate(); err != nil {
		return nil, translateSetError(err)
	}
	return hidden, nil
}
