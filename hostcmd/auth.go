package hostcmd

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	errNoAuth    = errors.New("no credentials")
	errSignature = errors.New("bad signature")
	errExpired   = errors.New("credentials expired")
)

// A grant is what a basic auth user name says: when it stops being valid
// and who it was handed to. It is written as "<unix expiry>[$<label>]".
type grant struct {
	expiry int64
	label  string
}

func (g grant) String() string {
	s := strconv.FormatInt(g.expiry, 10)
	if g.label != "" {
		s += "$" + g.label
	}
	return s
}

func parseGrant(user string) (grant, error) {
	expiry, label, _ := strings.Cut(user, "$")
	t, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return grant{}, errSignature
	}
	return grant{expiry: t, label: label}, nil
}

// sign returns the HMAC-SHA256 of user under apiKey.
func sign(apiKey, user string) []byte {
	mac := hmac.New(sha256.New, []byte(apiKey))
	mac.Write([]byte(user))
	return mac.Sum(nil)
}

// Credentials returns a basic auth pair that the server accepts until
// expiry. label shows up in the user name so that pairs can be told apart.
func Credentials(apiKey string, label string, expiry time.Time) (user, pass string) {
	user = grant{expiry: expiry.Unix(), label: label}.String()
	return user, hex.EncodeToString(sign(apiKey, user))
}

// checkCredentials validates the basic auth pair of rq at now.
func checkCredentials(rq *http.Request, apiKey string, now time.Time) error {
	user, pass, ok := rq.BasicAuth()
	if !ok {
		return errNoAuth
	}

	got, err := hex.DecodeString(pass)
	if err != nil || subtle.ConstantTimeCompare(got, sign(apiKey, user)) != 1 {
		return errSignature
	}

	g, err := parseGrant(user)
	if err != nil {
		return err
	}
	if now.Unix() > g.expiry {
		return errExpired
	}
	return nil
}

// requireAuth lets reads through and asks for signed credentials on every
// other method. An empty apiKey disables the check.
func requireAuth(handler http.HandlerFunc, apiKey string, now func() time.Time) http.HandlerFunc {
	if apiKey == "" {
		return handler
	}

	return func(rw http.ResponseWriter, rq *http.Request) {
		if rq.Method != http.MethodGet {
			if err := checkCredentials(rq, apiKey, now()); err != nil {
				rw.Header().Set("WWW-Authenticate", "Basic")
				http.Error(rw, err.Error(), http.StatusUnauthorized)
				return
			}
		}
		handler(rw, rq)
	}
}
