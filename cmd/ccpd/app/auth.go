package app

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/pkg/errors"

	"github.com/eclipse-opendut/opendut-go/internal/actions"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
)

// bearerValidator builds the RPC Surface's AuthConfig.Validate function. No JWT/JWKS
// verification library appears anywhere in the example pack, so this stands in for real OIDC
// token introspection with the simplest scheme the existing pieces support: the bearer token
// is "<peerId>" when OIDC is disabled (an ECA's own identity, issued to it once via
// GeneratePeerSetup), or "<peerId>:<clientSecret>" checked against the CCP's own record of
// that peer's dynamically registered OIDC client when enabled. cctl authenticates the same
// way, using the operator's own configured peer identity.
func bearerValidator(a *actions.Actions, oidcEnabled bool) func(ctx context.Context, token string) (string, error) {
	return func(_ context.Context, token string) (string, error) {
		peerPart := token
		secretPart := ""
		if i := strings.IndexByte(token, ':'); i >= 0 {
			peerPart, secretPart = token[:i], token[i+1:]
		}
		peerId, err := ids.ParsePeerId(peerPart)
		if err != nil {
			return "", errors.Wrap(err, "auth: token is not a valid peer identity")
		}
		if !oidcEnabled {
			return peerId.String(), nil
		}
		reg, ok := a.OidcRegistrations.Get(peerId)
		if !ok {
			return "", errors.Errorf("auth: peer %s has no oidc registration", peerId)
		}
		if subtle.ConstantTimeCompare([]byte(secretPart), []byte(reg.ClientSecret)) != 1 {
			return "", errors.Errorf("auth: invalid client secret for peer %s", peerId)
		}
		return peerId.String(), nil
	}
}
