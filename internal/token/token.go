// Package token derives and inspects the provisioning credential handed to the
// communication service.
//
// Format:
//
//	body       = "provision" NUL <user>@<appID> NUL <expires> NUL
//	token      = base64(body NUL hex(hmac_sha384(key, body)))
//
// expires counts seconds from 0001-01-01, i.e. unix + EpochOffset.
//
// Signing belongs on a trusted server. This package exists so the admission
// flow can demonstrate the credential shape end to end.
package token

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// EpochOffset is the number of seconds between 0001-01-01 and the unix epoch.
const EpochOffset int64 = 62167219200

const provisionTag = "provision"

const sep = "\x00"

var (
	ErrEmptyKey          = errors.New("signing key is required")
	ErrEmptyAppID        = errors.New("application id is required")
	ErrEmptyUserName     = errors.New("user name is required")
	ErrNonPositiveExpiry = errors.New("expiry window must be > 0")

	ErrMalformed = errors.New("malformed token")
	ErrBadMAC    = errors.New("token signature mismatch")
	ErrExpired   = errors.New("token expired")
)

// SigningError reports inputs the signer refuses to turn into a credential.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string { return "sign token: " + e.Err.Error() }

func (e *SigningError) Unwrap() error { return e.Err }

type Signer struct {
	Now func() time.Time
}

// Sign uses the wall clock.
func Sign(key, appID, userName string, expiresInSeconds int64) (string, error) {
	return Signer{}.Sign(key, appID, userName, expiresInSeconds)
}

func (s Signer) Sign(key, appID, userName string, expiresInSeconds int64) (string, error) {
	switch {
	case key == "":
		return "", &SigningError{Err: ErrEmptyKey}
	case appID == "":
		return "", &SigningError{Err: ErrEmptyAppID}
	case userName == "":
		return "", &SigningError{Err: ErrEmptyUserName}
	case expiresInSeconds <= 0:
		return "", &SigningError{Err: ErrNonPositiveExpiry}
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	expires := now().UTC().Unix() + expiresInSeconds + EpochOffset
	jid := userName + "@" + appID
	body := provisionTag + sep + jid + sep + strconv.FormatInt(expires, 10) + sep
	serialized := body + sep + mac([]byte(key), body)

	log.Debug().Str("module", "token").Str("jid", jid).Int64("expires", expires).Msg("token signed")
	return base64.StdEncoding.EncodeToString([]byte(serialized)), nil
}

func mac(key []byte, body string) string {
	h := hmac.New(sha512.New384, key)
	_, _ = h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

// Provision is a decoded credential.
type Provision struct {
	UserName string
	AppID    string
	// Expires is in the credential's own epoch; see ExpiresAt.
	Expires int64
	MAC     string

	body string
}

func (p Provision) JID() string { return p.UserName + "@" + p.AppID }

func (p Provision) ExpiresAt() time.Time {
	return time.Unix(p.Expires-EpochOffset, 0).UTC()
}

// Parse decodes a credential without checking its signature. The jid is split
// on its last '@'; application ids containing one are rejected at config load.
func Parse(tok string) (Provision, error) {
	raw, err := base64.StdEncoding.DecodeString(tok)
	if err != nil {
		return Provision{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	// provision NUL jid NUL expires NUL NUL mac
	parts := bytes.Split(raw, []byte(sep))
	if len(parts) != 5 || string(parts[0]) != provisionTag || len(parts[3]) != 0 {
		return Provision{}, ErrMalformed
	}
	jid := string(parts[1])
	at := bytes.LastIndexByte(parts[1], '@')
	if at <= 0 || at == len(jid)-1 {
		return Provision{}, ErrMalformed
	}
	expires, err := strconv.ParseInt(string(parts[2]), 10, 64)
	if err != nil || expires < 0 {
		return Provision{}, ErrMalformed
	}
	digest := string(parts[4])
	if len(digest) != hex.EncodedLen(sha512.Size384) {
		return Provision{}, ErrMalformed
	}
	return Provision{
		UserName: jid[:at],
		AppID:    jid[at+1:],
		Expires:  expires,
		MAC:      digest,
		body:     string(raw[:len(raw)-len(digest)-1]),
	}, nil
}

// Verify parses tok and checks its signature against key and its expiry against now.
func Verify(key, tok string, now time.Time) (Provision, error) {
	p, err := Parse(tok)
	if err != nil {
		return Provision{}, err
	}
	got, err := hex.DecodeString(p.MAC)
	if err != nil {
		return Provision{}, ErrMalformed
	}
	want, _ := hex.DecodeString(mac([]byte(key), p.body))
	if !hmac.Equal(got, want) {
		return Provision{}, ErrBadMAC
	}
	if !now.Before(p.ExpiresAt()) {
		return Provision{}, ErrExpired
	}
	return p, nil
}
