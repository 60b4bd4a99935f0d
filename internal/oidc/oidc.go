// Package oidc is the OIDC Registration component: holds the CCP's own confidential-client
// credential, exposes an oauth2-wrapped HTTP client for calling the identity provider's
// dynamic client registration endpoint, and rotates/revokes ECA client registrations.
// Token caching and refresh-before-expiry come from clientcredentials.Config's own
// TokenSource rather than hand-rolled expiry bookkeeping.
package oidc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/eclipse-opendut/opendut-go/pkg/ids"
)

// Config names the CCP's own confidential-client credential and the provider endpoints.
type Config struct {
	TokenURL         string
	RegistrationURL  string
	ClientID         string
	ClientSecret     string
	Scopes           []string
}

// Registrar issues and revokes per-peer client registrations, and supplies the CCP's own
// token source for calling back into the identity provider.
type Registrar struct {
	cfg    Config
	source *clientcredentials.Config
	http   *http.Client
}

func New(cfg Config) *Registrar {
	source := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return &Registrar{
		cfg:    cfg,
		source: source,
		http:   source.Client(context.Background()),
	}
}

// PeerRegistration is the credential handed to one ECA instance to authenticate its own
// confidential-client token requests against the identity provider.
type PeerRegistration struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type registrationRequest struct {
	ClientName string `json:"client_name"`
	GrantTypes []string `json:"grant_types"`
}

// RegisterPeer dynamically registers a new confidential client for peerId, calling the
// provider's registration endpoint with the CCP's own bearer token attached by the wrapped
// HTTP client.
func (r *Registrar) RegisterPeer(ctx context.Context, peerId ids.PeerId) (PeerRegistration, error) {
	body, err := json.Marshal(registrationRequest{
		ClientName: "opendut-eca-" + peerId.String(),
		GrantTypes: []string{"client_credentials"},
	})
	if err != nil {
		return PeerRegistration{}, errors.Wrap(err, "oidc: encoding registration request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.RegistrationURL, bytes.NewReader(body))
	if err != nil {
		return PeerRegistration{}, errors.Wrap(err, "oidc: building registration request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return PeerRegistration{}, errors.Wrapf(err, "oidc: registering peer %s", peerId)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return PeerRegistration{}, errors.Errorf("oidc: registering peer %s: provider returned %s", peerId, resp.Status)
	}

	var reg PeerRegistration
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		return PeerRegistration{}, errors.Wrapf(err, "oidc: decoding registration response for peer %s", peerId)
	}
	return reg, nil
}

// RevokePeer deletes peerId's client registration, called from actions.DeletePeer.
func (r *Registrar) RevokePeer(ctx context.Context, peerId ids.PeerId, clientID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.cfg.RegistrationURL+"/"+clientID, nil)
	if err != nil {
		return errors.Wrap(err, "oidc: building revocation request")
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "oidc: revoking peer %s", peerId)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return errors.Errorf("oidc: revoking peer %s: provider returned %s", peerId, resp.Status)
	}
	return nil
}

// RotatePeer revokes the old registration and issues a fresh one. A registration the provider
// no longer knows counts as revoked; any other revocation failure aborts the rotation.
func (r *Registrar) RotatePeer(ctx context.Context, peerId ids.PeerId, oldClientID string) (PeerRegistration, error) {
	if oldClientID != "" {
		if err := r.RevokePeer(ctx, peerId, oldClientID); err != nil {
			return PeerRegistration{}, err
		}
	}
	return r.RegisterPeer(ctx, peerId)
}
